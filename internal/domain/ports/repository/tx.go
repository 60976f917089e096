package repository

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle created by the TransactionManager.
// Repositories accept NoTX for the non-transactional path.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction. Settlement uses it to
// make the key write, referral accrual, buyer stats and the pending->paid transition
// commit or roll back together.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

type commitHooksKey struct{}

type commitHooks struct {
	mu  sync.Mutex
	fns []func()
}

// WithCommitHooks returns a context that collects AfterCommit callbacks and a function
// that runs them. A TransactionManager calls it after a successful commit only.
func WithCommitHooks(ctx context.Context) (context.Context, func()) {
	h := &commitHooks{}
	run := func() {
		h.mu.Lock()
		fns := h.fns
		h.fns = nil
		h.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}
	return context.WithValue(ctx, commitHooksKey{}, h), run
}

// AfterCommit defers fn until the enclosing transaction commits. Outside WithTx, or when
// the transaction rolls back, there is nothing to wait for: fn runs now or never.
func AfterCommit(ctx context.Context, fn func()) {
	h, ok := ctx.Value(commitHooksKey{}).(*commitHooks)
	if !ok {
		fn()
		return
	}
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}
