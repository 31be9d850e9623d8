package cache

import (
	"testing"

	"github.com/rcliao/reddit-digest/internal/model"
)

func TestSubjectKeyString(t *testing.T) {
	k := SubjectKey{Subject: " GoLang ", Limit: 20, Period: model.PeriodWeek}
	if got, want := k.String(), "golang::limit=20::period=1week"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := k.LimitKey(); got != "limit=20" {
		t.Errorf("limit key = %q", got)
	}
}

func TestParseSubjectKey(t *testing.T) {
	k, err := ParseSubjectKey("MachineLearning::limit=5::period=1month")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if k.Subject != "machinelearning" || k.Limit != 5 || k.Period != model.PeriodMonth {
		t.Errorf("got %+v", k)
	}
	again, err := ParseSubjectKey(k.String())
	if err != nil || again != k {
		t.Errorf("round trip = %+v, %v", again, err)
	}
}

func TestParseSubjectKeyErrors(t *testing.T) {
	bad := []string{
		"",
		"golang",
		"golang::limit=5",
		"::limit=5::period=1d",
		"golang::limit=0::period=1d",
		"golang::limit=x::period=1d",
		"golang::count=5::period=1d",
		"golang::limit=5::period=1year",
		"golang::limit=5::when=1d",
		"golang::limit=5::period=1d::extra",
	}
	for _, raw := range bad {
		if _, err := ParseSubjectKey(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestSanitizeID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"golang", "golang"},
		{"Go_Lang-2.0", "go_lang-2.0"},
		{"../etc/passwd", ".._etc_passwd"},
		{"a b", "a_b"},
		{"", "_"},
	}
	for _, tt := range tests {
		if got := sanitizeID(tt.in); got != tt.want {
			t.Errorf("sanitizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHashKeyStable(t *testing.T) {
	a, b := hashKey("some key"), hashKey("some key")
	if a != b {
		t.Error("hash not stable")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if hashKey("other") == a {
		t.Error("distinct keys share a hash")
	}
}
