// Package validation collects field-level input errors.
package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Errors is a list of human readable field messages.
type Errors []string

func (e Errors) Error() string {
	return "validation failed: " + strings.Join(e, "; ")
}

type Collector struct {
	errs Errors
}

func (c *Collector) Add(format string, args ...any) {
	c.errs = append(c.errs, fmt.Sprintf(format, args...))
}

func (c *Collector) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		c.Add("%q is required", field)
		return false
	}
	return true
}

// Length checks rune length of value against [min,max]; a zero bound is ignored.
func (c *Collector) Length(field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	if min > 0 && n < min {
		c.Add("%q length must be at least %d characters long", field, min)
	}
	if max > 0 && n > max {
		c.Add("%q length must be less than or equal to %d characters long", field, max)
	}
}

func (c *Collector) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	c.Add("%q must be one of [%s]", field, strings.Join(allowed, ", "))
}

func (c *Collector) IntRange(field string, value, min, max int) {
	if value < min || value > max {
		c.Add("%q must be between %d and %d", field, min, max)
	}
}

func (c *Collector) Email(field, value string) {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		c.Add("%q must be a valid email", field)
	}
}

var alphanum = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

func (c *Collector) Alphanum(field, value string) {
	if !alphanum.MatchString(value) {
		c.Add("%q must only contain alpha-numeric characters", field)
	}
}

// Err returns nil when nothing was collected.
func (c *Collector) Err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return c.errs
}
