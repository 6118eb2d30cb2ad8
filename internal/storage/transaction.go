package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ramonehamilton/commander-deckgen/internal/storage/repository"
)

// Tx exposes the telemetry repositories bound to one transaction.
type Tx struct {
	Attempts repository.AttemptRepository
	Sessions repository.SessionRepository
}

// TxFunc runs inside a transaction.
type TxFunc func(*Tx) error

// WithTransaction runs fn in a transaction named op. It commits when fn
// returns nil and rolls back otherwise, or when fn panics.
func (db *DB) WithTransaction(ctx context.Context, op string, fn TxFunc) (err error) {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("%s: rollback: %w", op, rbErr))
		}
	}()

	if err = fn(&Tx{
		Attempts: repository.NewAttemptRepository(sqlTx),
		Sessions: repository.NewSessionRepository(sqlTx),
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	committed = true
	return nil
}
