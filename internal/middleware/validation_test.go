package middleware

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valid", "alice", "alice", false},
		{"uppercase normalized", "Alice", "alice", false},
		{"valid with dash", "alice-01_test", "alice-01_test", false},
		{"trims whitespace", "  alice  ", "alice", false},
		{"empty", "", "", true},
		{"too long 65", strings.Repeat("a", 65), "", true},
		{"exactly 64", strings.Repeat("a", 64), strings.Repeat("a", 64), false},
		{"invalid chars", "alice bob", "", true},
		{"sql injection", "a'; DROP--", "", true},
		{"unicode", "alicé", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errMsg := ValidateAddress(tt.input)
			if tt.wantErr && errMsg == "" {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && errMsg != "" {
				t.Errorf("unexpected error: %s", errMsg)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidatePollID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"uuid", "8f14e45f-ceea-4672-a6f1-54f2a7a1c3d9", "8f14e45f-ceea-4672-a6f1-54f2a7a1c3d9", false},
		{"local id", "local-42", "local-42", false},
		{"empty", "", "", true},
		{"underscore rejected", "poll_1", "", true},
		{"too long", strings.Repeat("a", 65), "", true},
		{"invalid chars", "poll 1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errMsg := ValidatePollID(tt.input)
			if tt.wantErr && errMsg == "" {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && errMsg != "" {
				t.Errorf("unexpected error: %s", errMsg)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valid", "Will it rain tomorrow?", "Will it rain tomorrow?", false},
		{"trims whitespace", "  hello  ", "hello", false},
		{"empty", "", "", true},
		{"whitespace only", "   ", "", true},
		{"too long", strings.Repeat("x", 201), "", true},
		{"exactly 200", strings.Repeat("x", 200), strings.Repeat("x", 200), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errMsg := ValidateTitle(tt.input)
			if tt.wantErr && errMsg == "" {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && errMsg != "" {
				t.Errorf("unexpected error: %s", errMsg)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateOptions(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    []string
		wantErr bool
	}{
		{"two options", []string{"Yes", "No"}, []string{"Yes", "No"}, false},
		{"trims each", []string{" Yes ", " No "}, []string{"Yes", "No"}, false},
		{"one option", []string{"Yes"}, nil, true},
		{"nil", nil, nil, true},
		{"empty entry", []string{"Yes", " "}, nil, true},
		{"too many", make([]string, 11), nil, true},
		{"entry too long", []string{"Yes", strings.Repeat("x", 101)}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.name == "too many" {
				for i := range tt.input {
					tt.input[i] = "opt"
				}
			}
			got, errMsg := ValidateOptions(tt.input)
			if tt.wantErr && errMsg == "" {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && errMsg != "" {
				t.Errorf("unexpected error: %s", errMsg)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d options, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("option %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"positive", "10.5", false},
		{"tiny", "0.0000000001", false},
		{"zero", "0", true},
		{"negative", "-1", true},
		{"at cap", "1000000000", false},
		{"over cap", "1000000000.01", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.input)
			got, errMsg := ValidateAmount(amount)
			if tt.wantErr && errMsg == "" {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr {
				if errMsg != "" {
					t.Errorf("unexpected error: %s", errMsg)
				}
				if !got.Equal(amount) {
					t.Errorf("got %s, want %s", got, amount)
				}
			}
		})
	}
}

func TestValidateDeadline(t *testing.T) {
	if _, errMsg := ValidateDeadline(time.Time{}); errMsg == "" {
		t.Error("zero deadline accepted")
	}
	if _, errMsg := ValidateDeadline(time.Now().Add(-time.Minute)); errMsg == "" {
		t.Error("past deadline accepted")
	}
	future := time.Now().Add(time.Hour)
	got, errMsg := ValidateDeadline(future)
	if errMsg != "" {
		t.Fatalf("unexpected error: %s", errMsg)
	}
	if !got.Equal(future) {
		t.Errorf("got %v, want %v", got, future)
	}
}
