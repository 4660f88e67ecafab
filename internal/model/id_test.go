package model

import (
	"testing"
	"time"
)

func TestGenerateID(t *testing.T) {
	for _, idType := range []IDType{IDTypeTask, IDTypeResult} {
		t.Run(string(idType), func(t *testing.T) {
			id, err := GenerateID(idType)
			if err != nil {
				t.Fatalf("GenerateID(%q): %v", idType, err)
			}
			if !ValidateID(id) {
				t.Errorf("generated ID %q does not validate", id)
			}
			parsed, err := ParseIDType(id)
			if err != nil {
				t.Fatalf("ParseIDType(%q): %v", id, err)
			}
			if parsed != idType {
				t.Errorf("ParseIDType(%q) = %q, want %q", id, parsed, idType)
			}
		})
	}
}

func TestGenerateIDInvalidType(t *testing.T) {
	if _, err := GenerateID(IDType("bogus")); err == nil {
		t.Fatal("expected error for invalid ID type")
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"task_1700000000_deadbeef", true},
		{"res_1700000000_00ff00ff", true},
		{"cmd_1700000000_deadbeef", false},
		{"task_170_deadbeef", false},
		{"task_1700000000_DEADBEEF", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidateID(tt.id); got != tt.valid {
			t.Errorf("ValidateID(%q) = %v, want %v", tt.id, got, tt.valid)
		}
	}
}

func TestParseIDTimestamp(t *testing.T) {
	id, err := GenerateID(IDTypeTask)
	if err != nil {
		t.Fatalf("GenerateID: %v", err)
	}
	ts, err := ParseIDTimestamp(id)
	if err != nil {
		t.Fatalf("ParseIDTimestamp(%q): %v", id, err)
	}
	if d := time.Since(ts); d < 0 || d > time.Minute {
		t.Errorf("timestamp %v not close to now", ts)
	}
}
