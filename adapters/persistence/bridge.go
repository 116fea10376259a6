package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minhtranq/folio/pkg/apperror"
	"github.com/minhtranq/folio/pkg/logger"
)

// Bridge is the single seam between callers and blocking database work.
// It acquires a pooled connection, records pool metrics, and runs the
// supplied operation on its own goroutine with a detached context, so
// work that has been dispatched always runs to completion even when the
// caller gives up waiting.
type Bridge struct {
	pool   *Pool
	logger logger.Logger
}

func NewBridge(pool *Pool, log logger.Logger) *Bridge {
	return &Bridge{pool: pool, logger: log}
}

// WithConn runs op against a borrowed connection. The connection is
// released when op returns, on every exit path.
func (b *Bridge) WithConn(ctx context.Context, op func(ctx context.Context, conn *sql.Conn) error) error {
	return b.dispatch(ctx, "conn", func(opCtx context.Context, conn *sql.Conn) error {
		return op(opCtx, conn)
	})
}

// WithTx runs op inside a transaction on a borrowed connection. The
// transaction is rolled back on any error (or panic) from op and
// committed only when op succeeds.
func (b *Bridge) WithTx(ctx context.Context, op func(ctx context.Context, tx *sql.Tx) error) error {
	return b.dispatch(ctx, "tx", func(opCtx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(opCtx, nil)
		if err != nil {
			return apperror.NewInternal("begin transaction", err)
		}
		// No-op after a successful commit; rolls back on error and on
		// panic while the stack unwinds.
		defer tx.Rollback()

		if err := op(opCtx, tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return apperror.NewInternal("commit transaction", err)
		}
		return nil
	})
}

func (b *Bridge) dispatch(ctx context.Context, kind string, fn func(ctx context.Context, conn *sql.Conn) error) error {
	start := time.Now()

	conn, err := b.pool.Get(ctx)
	if err != nil {
		b.pool.Metrics().ConnectionError()
		return err
	}
	usage := b.pool.Metrics().ConnectionAcquired(time.Since(start))

	opID := uuid.NewString()
	b.logger.Debug("database operation dispatched",
		zap.String("op_id", opID), zap.String("kind", kind))

	done := make(chan error, 1)

	// Once dispatched the operation is not preemptible: it runs on a
	// detached context and releases the connection itself, so a caller
	// that stops waiting cannot strand a pooled connection. The release
	// happens before the caller is signalled so metrics are settled by
	// the time WithConn/WithTx returns.
	opCtx := context.WithoutCancel(ctx)
	go func() {
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = apperror.NewInternal(
						fmt.Sprintf("panic in database operation %s", opID), fmt.Errorf("%v", r))
				}
			}()
			return fn(opCtx, conn)
		}()
		usage.Done()
		if cerr := conn.Close(); cerr != nil {
			b.logger.Warn("release connection failed",
				zap.String("op_id", opID), zap.Error(cerr))
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		b.logger.Warn("caller abandoned database operation",
			zap.String("op_id", opID), zap.Error(ctx.Err()))
		return ctx.Err()
	}
}
