package model

import (
	"strings"
	"time"

	"vpn-shop-bot/internal/domain"
)

// Host is a provisioning endpoint: a 3x-ui panel and the inbound keys are created on.
// Password is kept encrypted at rest; repositories return it decrypted.
type Host struct {
	Name      string
	PanelURL  string
	Username  string
	Password  string
	InboundID int
	CreatedAt time.Time
}

func NewHost(name, panelURL, username, password string, inboundID int) (*Host, error) {
	name = strings.TrimSpace(name)
	if name == "" || panelURL == "" || inboundID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Host{
		Name:      name,
		PanelURL:  strings.TrimRight(panelURL, "/"),
		Username:  username,
		Password:  password,
		InboundID: inboundID,
		CreatedAt: time.Now(),
	}, nil
}

// LabelDomain is the host part used in identity labels, e.g. "Frankfurt 1" -> "frankfurt1.bot".
func (h *Host) LabelDomain() string {
	return HostLabelDomain(h.Name)
}

func HostLabelDomain(hostName string) string {
	return strings.ToLower(strings.ReplaceAll(hostName, " ", "")) + ".bot"
}
