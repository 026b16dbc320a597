package models

import (
	"errors"
	"testing"
	"time"
)

func TestValidateYearBounds(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		chamber Chamber
		year    int
		wantErr bool
	}{
		{Senate, 2025, true},
		{House, 2025, true},
		{House, 1994, true},
		{House, 1995, false},
		{Senate, 2011, true},
		{Senate, 2012, false},
		{Senate, 2024, false},
		{House, 99, true},
	}

	for _, tt := range tests {
		err := ValidateYear(tt.chamber, tt.year, now)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateYear(%s, %d) error = %v; wantErr %v", tt.chamber, tt.year, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ValidateYear(%s, %d) error %v is not ErrInvalidInput", tt.chamber, tt.year, err)
		}
	}
}

func TestChamberStates(t *testing.T) {
	if len(senateStates) != 50 {
		t.Fatalf("senate states: got %d, want 50", len(senateStates))
	}
	for _, code := range []string{"DC", "PR", "GU", "XX"} {
		if Senate.ValidState(code) {
			t.Errorf("senate should reject %s", code)
		}
	}
	for _, code := range []string{"DC", "PR", "ca"} {
		if !House.ValidState(code) {
			t.Errorf("house should accept %s", code)
		}
	}
	if House.ValidState("XX") {
		t.Error("house should reject XX")
	}
}

func TestEntityIdentityValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      EntityIdentity
		wantErr bool
	}{
		{"senator", EntityIdentity{Chamber: Senate, LastName: "Warren", State: "MA"}, false},
		{"no last name", EntityIdentity{Chamber: Senate, LastName: "  "}, true},
		{"senate territory", EntityIdentity{Chamber: Senate, LastName: "Test", State: "PR"}, true},
		{"house territory", EntityIdentity{Chamber: House, LastName: "Test", State: "PR"}, false},
		{"senate district", EntityIdentity{Chamber: Senate, LastName: "Test", District: "4"}, true},
		{"bad district", EntityIdentity{Chamber: House, LastName: "Test", District: "x"}, true},
		{"no chamber", EntityIdentity{LastName: "Test"}, true},
	}
	for _, tt := range tests {
		err := tt.id.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() = %v; wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestEntityIdentityKeyNormalizes(t *testing.T) {
	a := EntityIdentity{Chamber: House, LastName: " pelosi", State: "ca", District: "011"}
	b := EntityIdentity{Chamber: House, LastName: "PELOSI", State: "CA", District: "11"}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
	c := b
	c.Chamber = Senate
	if c.Key() == b.Key() {
		t.Error("chamber must be part of the key")
	}
}

func TestReportingWindowGracePeriod(t *testing.T) {
	// Previous year queried after the cutoff: filings through Feb 15 still count.
	now := time.Date(2024, time.February, 20, 9, 0, 0, 0, time.UTC)
	from, to := ReportingWindow(2023, now)
	if want := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC); !from.Equal(want) {
		t.Errorf("from: got %v, want %v", from, want)
	}
	if want := time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC); !to.Equal(want) {
		t.Errorf("to: got %v, want %v", to, want)
	}

	// Before the cutoff the window is capped at today.
	early := time.Date(2024, time.February, 3, 9, 0, 0, 0, time.UTC)
	_, to = ReportingWindow(2023, early)
	if want := time.Date(2024, time.February, 3, 0, 0, 0, 0, time.UTC); !to.Equal(want) {
		t.Errorf("to before cutoff: got %v, want %v", to, want)
	}

	// Current year ends today.
	_, to = ReportingWindow(2024, now)
	if want := time.Date(2024, time.February, 20, 0, 0, 0, 0, time.UTC); !to.Equal(want) {
		t.Errorf("current year to: got %v, want %v", to, want)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(Transient("wait", errors.New("element not rendered"))) {
		t.Error("transient error not classified as transient")
	}
	if IsTransient(errors.New("plain")) {
		t.Error("plain error should be permanent")
	}
	if IsTransient(Transient("submit", ErrNoResults)) {
		t.Error("no results must never be retried")
	}
	ex := &ExhaustedError{Op: "search", Attempts: 3, Last: Transient("wait", errors.New("x"))}
	if IsTransient(ex) {
		t.Error("exhausted error must not be retried again")
	}
	if !errors.Is(ex, ErrTimeout) {
		t.Error("exhausted error should match ErrTimeout")
	}
}
