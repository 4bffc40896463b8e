package config

import (
	"testing"
	"time"
)

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("x", " 45s "); err != nil || d != 45*time.Second {
		t.Fatalf("ParseDurationField = %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty should parse to zero, got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration must be rejected")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("malformed duration must be rejected")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("omitted value should take the default, got %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "10s", time.Minute); err != nil || d != 10*time.Second {
		t.Fatalf("explicit value should win, got %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "nope", time.Minute); err == nil {
		t.Fatal("malformed duration must still error")
	}
}
