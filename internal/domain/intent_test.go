package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/crypto_scale_out/internal/domain"
)

func TestIsShort(t *testing.T) {
	tests := []struct {
		name  string
		entry float64
		stop  float64
		want  bool
	}{
		{"Entry above stop -> long", 10000, 9000, false},
		{"Entry below stop -> short", 9000, 10000, true},
		{"Entry equals stop -> long", 9000, 9000, false},
		{"Market entry with stop above -> short", 0, 9500, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := &domain.OrderIntent{EntryPrice: tt.entry, StopPrice: tt.stop}
			if got := i.IsShort(); got != tt.want {
				t.Errorf("IsShort() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	i := &domain.OrderIntent{
		Symbol:     "tBTCUSD",
		Amount:     0.1,
		EntryPrice: 10000,
		StopPrice:  9000.12345,
	}
	i.Normalize()

	assert.Equal(t, 9000.1, i.StopPrice, "stop price should be rounded to venue precision")
	assert.Equal(t, 9000.1, i.CancelPrice, "cancel price defaults to the stop price")
	assert.Equal(t, domain.DefaultTakerFee, i.FeeRate)
	assert.Equal(t, domain.ExitScaleOut, i.ExitMode)
}

func TestValidate(t *testing.T) {
	valid := func() *domain.OrderIntent {
		i := &domain.OrderIntent{
			Symbol:     "tBTCUSD",
			Amount:     0.1,
			EntryPrice: 10000,
			StopPrice:  9000,
			Margin:     true,
		}
		i.Normalize()
		return i
	}

	t.Run("valid long", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("short on margin is allowed", func(t *testing.T) {
		i := valid()
		i.EntryPrice = 9000
		i.StopPrice = 10000
		assert.NoError(t, i.Validate())
	})

	t.Run("short on spot is rejected", func(t *testing.T) {
		i := valid()
		i.EntryPrice = 9000
		i.StopPrice = 10000
		i.Margin = false
		assert.Error(t, i.Validate())
	})

	t.Run("missing pair", func(t *testing.T) {
		i := valid()
		i.Symbol = ""
		assert.Error(t, i.Validate())
	})

	t.Run("zero amount", func(t *testing.T) {
		i := valid()
		i.Amount = 0
		assert.Error(t, i.Validate())
	})

	t.Run("fixed target mode needs a target", func(t *testing.T) {
		i := valid()
		i.ExitMode = domain.ExitFixedTarget
		assert.Error(t, i.Validate())
		i.FixedTarget = 11000
		assert.NoError(t, i.Validate())
	})

	t.Run("target outside fixed-target mode", func(t *testing.T) {
		i := valid()
		i.FixedTarget = 11000
		assert.Error(t, i.Validate())
	})

	t.Run("limit entry needs a price", func(t *testing.T) {
		i := valid()
		i.LimitEntry = true
		i.EntryPrice = 0
		i.Margin = true
		assert.Error(t, i.Validate())
	})
}
