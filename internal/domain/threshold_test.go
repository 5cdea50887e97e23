package domain

import (
	"errors"
	"testing"
)

func TestParseThreshold_Valid(t *testing.T) {
	cases := map[string]float64{
		"10":      10,
		" 0.5 ":   0.5,
		".25":     0.25,
		"3.":      3,
		"+7.125":  7.125,
		"0.00001": 0.00001,
	}
	for in, want := range cases {
		got, err := ParseThreshold(in)
		if err != nil {
			t.Fatalf("ParseThreshold(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseThreshold(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestParseThreshold_Invalid(t *testing.T) {
	for _, in := range []string{"", "0", "0.0", "-1", "1,5", "abc", "1e3", "NaN", "inf", "1.2.3"} {
		if _, err := ParseThreshold(in); !errors.Is(err, ErrInvalidThreshold) {
			t.Fatalf("ParseThreshold(%q) expected ErrInvalidThreshold, got %v", in, err)
		}
	}
}
