package store

import "testing"

func TestEncodeCursor(t *testing.T) {
	if got := EncodeCursor(0); got != "" {
		t.Errorf("EncodeCursor(0) = %q, want empty", got)
	}
	if got := EncodeCursor(1700000000); got == "" {
		t.Error("EncodeCursor(1700000000) is empty")
	}
}

func TestDecodeCursor(t *testing.T) {
	tests := []struct {
		name      string
		encoded   string
		wantTs    int64
		wantValid bool
	}{
		{"round trip", EncodeCursor(1700000000), 1700000000, true},
		{"empty", "", 0, false},
		{"invalid base64", "not-base64!!!", 0, false},
		{"non-numeric", "aGVsbG8", 0, false},
		{"negative", EncodeCursor(-5), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, ok := DecodeCursor(tt.encoded)
			if ok != tt.wantValid {
				t.Fatalf("valid = %v, want %v", ok, tt.wantValid)
			}
			if ts != tt.wantTs {
				t.Errorf("ts = %d, want %d", ts, tt.wantTs)
			}
		})
	}
}
