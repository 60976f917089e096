package adapter

import (
	"context"

	"github.com/shopspring/decimal"
)

// Checkout is what a redirect-style rail returns to the conversation.
type Checkout struct {
	ProviderRef string
	PayURL      string
}

// InvoiceRequest describes a charge in the shop currency.
type InvoiceRequest struct {
	PaymentID     string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	CustomerEmail string
	Metadata      map[string]string
}

// CardGateway is the gateway-redirect rail (YooKassa).
type CardGateway interface {
	Name() string
	CreatePayment(ctx context.Context, req InvoiceRequest) (*Checkout, error)
	// FetchPayment re-reads the payment from the provider; used to authenticate webhooks.
	FetchPayment(ctx context.Context, providerRef string) (*GatewayPayment, error)
}

type GatewayPayment struct {
	ProviderRef string
	Status      string
	Paid        bool
	Amount      decimal.Decimal
	Metadata    map[string]string
}

// InvoiceIssuer is a crypto-invoice rail (CryptoBot, Heleket).
type InvoiceIssuer interface {
	Name() string
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Checkout, error)
}

// TransferRequest is an on-chain transfer pushed to a connected wallet.
type TransferRequest struct {
	Address    string
	AmountNano int64
	Memo       string
	ValidUntil int64
}

// WalletSession is one wallet-connect handshake.
type WalletSession interface {
	ConnectURL() string
	Connected() bool
	SendTransaction(ctx context.Context, req TransferRequest) error
	Close() error
}

// WalletConnector opens wallet-connect sessions (TON Connect).
type WalletConnector interface {
	NewSession(ctx context.Context) (WalletSession, error)
}
