package domain_test

import (
	"math"
	"testing"

	"github.com/vitos/crypto_scale_out/internal/domain"
)

func TestRoundSig(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"Zero", 0, 0},
		{"Exact five digits", 11080, 11080},
		{"Six digits rounds down", 11080.16, 11080},
		{"Four-digit magnitude keeps one decimal", 7928.144, 7928.1},
		{"Small price", 0.0012345678, 0.0012346},
		{"Negative amount", -0.500004, -0.5},
		{"Large price", 123456789, 123460000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.RoundSig(tt.in)
			if got != tt.want {
				t.Errorf("RoundSig(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundSigIdempotent(t *testing.T) {
	inputs := []float64{0, 9000, 10000.5, 11080.16, 7928.144, 0.00012345, -42.4242, 65536.5}
	for _, x := range inputs {
		once := domain.RoundSig(x)
		twice := domain.RoundSig(once)
		if once != twice {
			t.Errorf("RoundSig not idempotent for %v: %v != %v", x, once, twice)
		}
	}
}

func TestRoundSigPreservesSignAndMagnitude(t *testing.T) {
	inputs := []float64{9000, -9000, 0.0042, -0.0042, 123456, -123456}
	for _, x := range inputs {
		got := domain.RoundSig(x)
		if math.Signbit(got) != math.Signbit(x) {
			t.Errorf("RoundSig(%v) = %v changed sign", x, got)
		}
		if math.Ceil(math.Log10(math.Abs(got))) != math.Ceil(math.Log10(math.Abs(x))) {
			t.Errorf("RoundSig(%v) = %v changed magnitude", x, got)
		}
	}
}
