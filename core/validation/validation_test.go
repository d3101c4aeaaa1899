package validation

import (
	"errors"
	"testing"
)

func TestCollectorAggregatesMessages(t *testing.T) {
	var c Collector
	c.Required("username", "")
	c.Length("password", "short", 8, 128)
	c.Email("email", "not-an-email")
	c.OneOf("role", "root", []string{"user", "admin"})
	c.IntRange("severity", 11, 1, 10)
	err := c.Err()
	var verr Errors
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	if len(verr) != 5 {
		t.Fatalf("expected 5 messages, got %d: %v", len(verr), verr)
	}
}

func TestCollectorEmptyIsNil(t *testing.T) {
	var c Collector
	c.Email("email", "alice@example.com")
	c.Alphanum("username", "alice42")
	if err := c.Err(); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
