package domain

import (
	"errors"
	"math"
	"testing"
)

func f64(v float64) *float64 { return &v }

func TestMarketConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       MarketConfig
		wantField string
	}{
		{"zero value disables every rule", MarketConfig{Market: "BTCUSDT"}, ""},
		{"overrides in range", MarketConfig{MinConfidenceForBuy: f64(0), MinConfidenceForSell: f64(100), BuyRatio: f64(1), SellRatio: f64(0.5)}, ""},
		{"negative cooldown", MarketConfig{SellCooldownMinutes: -1}, "cooldown_minutes"},
		{"NaN cooldown", MarketConfig{BuyCooldownMinutes: math.NaN()}, "cooldown_minutes"},
		{"NaN min volume", MarketConfig{MinVolume: math.NaN()}, "min_volume"},
		{"buy confidence above 100", MarketConfig{MinConfidenceForBuy: f64(101)}, "min_confidence_for_buy"},
		{"NaN buy confidence", MarketConfig{MinConfidenceForBuy: f64(math.NaN())}, "min_confidence_for_buy"},
		{"negative sell confidence", MarketConfig{MinConfidenceForSell: f64(-5)}, "min_confidence_for_sell"},
		{"NaN sell ratio", MarketConfig{SellRatio: f64(math.NaN())}, "sell_ratio"},
		{"zero buy ratio", MarketConfig{BuyRatio: f64(0)}, "buy_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("expected valid config, got %v", err)
				}
				return
			}
			var cve *ConfigValidationError
			if !errors.As(err, &cve) {
				t.Fatalf("expected ConfigValidationError, got %v", err)
			}
			if cve.Field != tt.wantField {
				t.Errorf("expected field %s, got %s", tt.wantField, cve.Field)
			}
		})
	}
}

func TestSimulationConfig_ValidateRejectsNaN(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.BuyRatio = math.NaN()

	var cve *ConfigValidationError
	if !errors.As(cfg.Validate(), &cve) || cve.Field != "buy_ratio" {
		t.Errorf("expected buy_ratio validation error, got %v", cfg.Validate())
	}
	if err := DefaultSimulationConfig().Validate(); err != nil {
		t.Errorf("default config should be valid, got %v", err)
	}
}
