package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

func NowUTC() time.Time {
	return time.Now().UTC()
}

// RandString returns n random bytes hex encoded.
func RandString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// MinutesBetween returns whole minutes elapsed from start to end, never negative.
func MinutesBetween(start, end time.Time) int64 {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Minute)
}
