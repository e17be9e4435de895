package domain

import (
	"errors"
	"fmt"
)

// MinCandles is the minimum series length a backtest accepts.
const MinCandles = 50

// DataInsufficientError reports that fewer than MinCandles candles were available.
type DataInsufficientError struct {
	Market string
	Count  int
	Cause  error
}

func (e *DataInsufficientError) Error() string {
	msg := fmt.Sprintf("insufficient data for %s: found %d candles, need at least %d", e.Market, e.Count, MinCandles)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DataInsufficientError) Unwrap() error {
	return e.Cause
}

// TransientFetchError is a retryable market data failure (network, 429, 5xx).
type TransientFetchError struct {
	Market     string
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient fetch error for %s (status %d): %v", e.Market, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient fetch error for %s: %v", e.Market, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// ConfigValidationError rejects a config before a run starts.
type ConfigValidationError struct {
	Field  string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// SimulationInternalError describes a degenerate arithmetic condition.
// Callers fall back to a defined value and only log it.
type SimulationInternalError struct {
	Op     string
	Reason string
}

func (e *SimulationInternalError) Error() string {
	return fmt.Sprintf("simulation internal error in %s: %s", e.Op, e.Reason)
}

// IsTransient reports whether err is a TransientFetchError.
func IsTransient(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}
