package dbexec

import (
	"context"
	"errors"
	"sync"
)

type txScopeKey struct{}

// TxScope holds a shared transaction for a multi-record write.
type TxScope struct {
	tx        TxExecutor
	hasError  bool
	finalized bool
	mu        sync.Mutex
}

func NewTxScope(tx TxExecutor) *TxScope {
	return &TxScope{tx: tx}
}

func (s *TxScope) Tx() TxExecutor {
	return s.tx
}

func (s *TxScope) MarkError() {
	s.mu.Lock()
	s.hasError = true
	s.mu.Unlock()
}

// Finalize commits or rolls back the transaction based on the error state.
// The lock is held across the decision and the commit so MarkError cannot interleave.
func (s *TxScope) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return nil
	}
	s.finalized = true

	if s.hasError {
		return s.tx.Rollback()
	}
	return s.tx.Commit()
}

func WithTxScope(ctx context.Context, s *TxScope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, txScopeKey{}, s)
}

func TxScopeFromContext(ctx context.Context) *TxScope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(txScopeKey{}).(*TxScope)
	return s
}

// ExecutorFromContext returns the transaction in ctx, or fallback when none is open.
func ExecutorFromContext(ctx context.Context, fallback QueryExecutor) QueryExecutor {
	if s := TxScopeFromContext(ctx); s != nil {
		return s.tx
	}
	return fallback
}

// RunInTx opens a transaction, runs fn with the transaction on its context and
// commits when fn succeeds. Any error from fn rolls the transaction back.
// A transaction already present on ctx is reused and left for its owner to finalize.
func RunInTx(ctx context.Context, beginner TxBeginner, fn func(ctx context.Context) error) (err error) {
	if existing := TxScopeFromContext(ctx); existing != nil {
		if err := fn(ctx); err != nil {
			existing.MarkError()
			return err
		}
		return nil
	}

	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	scope := NewTxScope(tx)
	defer func() {
		if p := recover(); p != nil {
			scope.MarkError()
			_ = scope.Finalize()
			panic(p)
		}
	}()

	if err := fn(WithTxScope(ctx, scope)); err != nil {
		scope.MarkError()
		if rbErr := scope.Finalize(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return scope.Finalize()
}
