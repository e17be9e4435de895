package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"backtest-lab/internal/storage"
)

func TestStoreError(t *testing.T) {
	assert.NoError(t, storeError("get market config", nil))

	err := storeError("get market config", fmt.Errorf("scan: %w", pgx.ErrNoRows))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = storeError("insert backtest run", &pgconn.PgError{Code: pgUniqueViolation})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	cause := &pgconn.PgError{Code: "23503"}
	err = storeError("insert backtest run", cause)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, storage.ErrDuplicateKey)
	assert.Contains(t, err.Error(), "insert backtest run")

	plain := errors.New("connection reset")
	err = storeError("list backtest runs", plain)
	assert.ErrorIs(t, err, plain)
	assert.Equal(t, "list backtest runs: connection reset", err.Error())
}
