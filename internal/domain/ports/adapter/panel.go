package adapter

import (
	"context"

	"vpn-shop-bot/internal/domain/model"
)

// PanelClient is the credential-issuing panel of a host.
type PanelClient interface {
	// ProvisionOrExtend creates the client with the label, or extends it by days when it already exists.
	ProvisionOrExtend(ctx context.Context, host *model.Host, identityLabel string, days int) (*model.ProvisionResult, error)
	// ConnectionInfo returns the connection string (vless://...) of an existing key.
	ConnectionInfo(ctx context.Context, host *model.Host, key *model.Key) (string, error)
}
