package usecase_test

import (
	"testing"

	"github.com/vitos/crypto_scale_out/internal/usecase"
)

func TestTarget(t *testing.T) {
	calc := usecase.NewTargetCalculator()

	tests := []struct {
		name     string
		entry    float64
		stop     float64
		fee      float64
		slippage float64
		short    bool
		override float64
		want     float64
	}{
		{"Long no fee no slippage", 10000, 9000, 0, 0, false, 0, 11000},
		{"Long with taker fee", 10000, 9000, 0.002, 0, false, 0, 11080},
		{"Short with taker fee", 9000, 10000, 0.002, 0, true, 0, 7928.1},
		{"Long slippage widens target", 10000, 9000, 0, 0.01, false, 0, 11090},
		{"Short slippage widens target", 9000, 10000, 0, 0.01, true, 0, 7900},
		{"Override bypasses calculation", 10000, 9000, 0.002, 0.01, false, 12345.678, 12346},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Target(tt.entry, tt.stop, tt.fee, tt.slippage, tt.short, tt.override)
			if got != tt.want {
				t.Errorf("Target() = %v, want %v", got, tt.want)
			}
		})
	}
}
