package model

import (
	"fmt"
	"time"
)

// Key is a VPN credential issued on a host panel.
// Email is the identity label: unique per host and used as the panel-side lookup key.
type Key struct {
	ID         int64
	UserID     int64
	HostName   string
	ClientUUID string
	Email      string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	RemindedAt *time.Time
}

func (k *Key) IsZero() bool { return k == nil || k.ID == 0 }

func (k *Key) Active(now time.Time) bool { return k != nil && k.ExpiresAt.After(now) }

// IdentityLabel builds the label for a new key, e.g. "user42-key3@frankfurt1.bot"
// or "user42-key1-trial@frankfurt1.bot".
func IdentityLabel(userID int64, seq int, hostName string, trial bool) string {
	suffix := ""
	if trial {
		suffix = "-trial"
	}
	return fmt.Sprintf("user%d-key%d%s@%s", userID, seq, suffix, HostLabelDomain(hostName))
}

// ProvisionResult is what the panel returns after creating or extending a client.
type ProvisionResult struct {
	ClientUUID       string
	Email            string
	ExpiryMs         int64
	ConnectionString string
}

func (r *ProvisionResult) Expiry() time.Time { return time.UnixMilli(r.ExpiryMs) }

// LatestActive returns the active key that expires last, or nil.
func LatestActive(keys []*Key, now time.Time) *Key {
	var latest *Key
	for _, k := range keys {
		if !k.Active(now) {
			continue
		}
		if latest == nil || k.ExpiresAt.After(latest.ExpiresAt) {
			latest = k
		}
	}
	return latest
}
