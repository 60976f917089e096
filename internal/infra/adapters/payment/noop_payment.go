package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/ports/adapter"
)

var (
	_ adapter.CardGateway   = (*NoopGateway)(nil)
	_ adapter.InvoiceIssuer = (*NoopGateway)(nil)
)

// NoopGateway is an in-memory rail for dev mode and tests. Every payment it creates
// reports as paid on FetchPayment.
type NoopGateway struct {
	name     string
	mu       sync.Mutex
	seq      int64
	payments map[string]adapter.GatewayPayment
}

func NewNoopGateway(name string) *NoopGateway {
	return &NoopGateway{name: name, payments: make(map[string]adapter.GatewayPayment)}
}

func (g *NoopGateway) Name() string { return g.name }

func (g *NoopGateway) next() string {
	g.seq++
	return fmt.Sprintf("noop-%d", g.seq)
}

func (g *NoopGateway) CreatePayment(ctx context.Context, req adapter.InvoiceRequest) (*adapter.Checkout, error) {
	if req.PaymentID == "" || !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.next()
	g.payments[ref] = adapter.GatewayPayment{
		ProviderRef: ref,
		Status:      "succeeded",
		Paid:        true,
		Amount:      req.Amount,
		Metadata:    withPaymentID(req.Metadata, req.PaymentID),
	}
	return &adapter.Checkout{ProviderRef: ref, PayURL: "https://example.test/pay/" + ref}, nil
}

func (g *NoopGateway) CreateInvoice(ctx context.Context, req adapter.InvoiceRequest) (*adapter.Checkout, error) {
	return g.CreatePayment(ctx, req)
}

func (g *NoopGateway) FetchPayment(ctx context.Context, providerRef string) (*adapter.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[providerRef]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

// Total sums every created payment; handy in tests.
func (g *NoopGateway) Total() decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	sum := decimal.Zero
	for _, p := range g.payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}
