package marketconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"backtest-lab/internal/domain"
)

// File is the on-disk layout of a market override file.
//
//	markets:
//	  - market: BTCUSDT
//	    stop_loss_percent: 5
//	    use_kelly: true
type File struct {
	Markets []domain.MarketConfig `yaml:"markets"`
}

// Parse decodes and validates an override file.
func Parse(data []byte) ([]domain.MarketConfig, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode market config: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Markets))
	for i, c := range f.Markets {
		if c.Market == "" {
			return nil, fmt.Errorf("market config %d: missing market", i)
		}
		if _, dup := seen[c.Market]; dup {
			return nil, fmt.Errorf("market config %d: duplicate market %s", i, c.Market)
		}
		seen[c.Market] = struct{}{}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("market config %s: %w", c.Market, err)
		}
	}
	return f.Markets, nil
}

// ReadFile reads and parses an override file.
func ReadFile(path string) ([]domain.MarketConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read market config: %w", err)
	}
	return Parse(data)
}

// LoadFile reads an override file into a Static resolver.
func LoadFile(path string) (*Static, error) {
	configs, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewStatic(configs...), nil
}
