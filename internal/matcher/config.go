package matcher

import (
	"fmt"

	"github.com/ledgersift/ledgersift/internal/common"
)

// Config holds the tolerances and thresholds for one matching run.
type Config struct {
	DateToleranceDays      int
	AmountTolerancePercent float64
	AutoMatchThreshold     float64
}

// DefaultConfig returns the default matching configuration.
func DefaultConfig() Config {
	return Config{
		DateToleranceDays:      3,
		AmountTolerancePercent: 0.01,
		AutoMatchThreshold:     0.8,
	}
}

// Validate rejects out-of-range configuration before any matching starts.
func (c Config) Validate() error {
	if c.DateToleranceDays < 0 {
		return fmt.Errorf("%w: date tolerance days must be non-negative, got %d",
			common.ErrInvalidConfig, c.DateToleranceDays)
	}
	if c.AmountTolerancePercent < 0 || c.AmountTolerancePercent > 1 {
		return fmt.Errorf("%w: amount tolerance percent must be in [0,1], got %v",
			common.ErrInvalidConfig, c.AmountTolerancePercent)
	}
	if c.AutoMatchThreshold < 0 || c.AutoMatchThreshold > 1 {
		return fmt.Errorf("%w: auto-match threshold must be in [0,1], got %v",
			common.ErrInvalidConfig, c.AutoMatchThreshold)
	}
	return nil
}
