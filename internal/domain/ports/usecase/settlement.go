package usecase

import "context"

// Settler is the settlement entry point used by out-of-band confirmations (webhooks).
// providerRef is the provider's own payment id and may be empty.
type Settler interface {
	SettlePayment(ctx context.Context, paymentID, providerRef string) error
	// SettleOnChain settles a TON transfer only when paidNano covers the amount frozen
	// into the pending transaction; otherwise it returns domain.ErrUnderpaid and the
	// transaction stays pending.
	SettleOnChain(ctx context.Context, paymentID, txHash string, paidNano int64) error
}
