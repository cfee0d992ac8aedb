package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	txMaxAttempts = 5
	txTimeout     = 15 * time.Second
)

// TxFunc is executed within a Firestore transaction and may be retried on contention.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// RunTransaction runs fn in a read-write transaction of at most txMaxAttempts attempts.
// The whole transaction is capped at txTimeout unless ctx already expires sooner.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc) error {
	const op = "transaction"
	if fn == nil {
		return WrapError(op, errors.New("firestore: nil transaction function"))
	}
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(txTimeout)
	if current, ok := ctx.Deadline(); !ok || current.After(deadline) {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	return WrapError(op, client.RunTransaction(ctx, fn, firestore.MaxAttempts(txMaxAttempts)))
}
