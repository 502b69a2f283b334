package codec

import "testing"

func TestStatus_OK(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusOK, true},
		{1, false},
		{-1, false},
		{5, false},
	}

	for _, tt := range tests {
		if got := tt.status.OK(); got != tt.want {
			t.Errorf("Status(%d).OK() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestBoolFlag(t *testing.T) {
	if BoolFlag(true) != 1 {
		t.Error("BoolFlag(true) should be 1")
	}
	if BoolFlag(false) != 0 {
		t.Error("BoolFlag(false) should be 0")
	}
}

func TestQualityBounds(t *testing.T) {
	if DefaultQuality < MinQuality || DefaultQuality > MaxQuality {
		t.Errorf("DefaultQuality %d outside [%d, %d]", DefaultQuality, MinQuality, MaxQuality)
	}
}
