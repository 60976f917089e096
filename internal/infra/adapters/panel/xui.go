package panel

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
)

var _ adapter.PanelClient = (*XUIClient)(nil)

const vlessFlow = "xtls-rprx-vision"

// XUIClient talks to 3x-ui panels. Every call logs in with the host's
// credentials; the session cookie lives only for that call.
type XUIClient struct {
	timeout  time.Duration
	insecure bool
	log      *zerolog.Logger
	now      func() time.Time
}

func NewXUIClient(cfg config.PanelConfig, logger *zerolog.Logger) *XUIClient {
	l := logger.With().Str("component", "xui").Logger()
	return &XUIClient{timeout: cfg.Timeout, insecure: cfg.SkipTLSVerify, log: &l, now: time.Now}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

type inbound struct {
	ID             int    `json:"id"`
	Port           int    `json:"port"`
	Protocol       string `json:"protocol"`
	Remark         string `json:"remark"`
	Settings       string `json:"settings"`
	StreamSettings string `json:"streamSettings"`
}

type xuiClient struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Enable     bool   `json:"enable"`
	Flow       string `json:"flow"`
	ExpiryTime int64  `json:"expiryTime"`
	LimitIP    int    `json:"limitIp"`
	TotalGB    int64  `json:"totalGB"`
	TgID       string `json:"tgId"`
	SubID      string `json:"subId"`
}

type inboundSettings struct {
	Clients []xuiClient `json:"clients"`
}

type streamSettings struct {
	Network         string `json:"network"`
	Security        string `json:"security"`
	RealitySettings struct {
		ServerNames []string `json:"serverNames"`
		ShortIDs    []string `json:"shortIds"`
		Settings    struct {
			PublicKey   string `json:"publicKey"`
			Fingerprint string `json:"fingerprint"`
		} `json:"settings"`
	} `json:"realitySettings"`
}

func (c *XUIClient) session(ctx context.Context, host *model.Host) (*resty.Client, error) {
	cli := resty.New().
		SetBaseURL(host.PanelURL).
		SetTimeout(c.timeout)
	if c.insecure {
		cli.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}

	var out apiResponse
	resp, err := cli.R().
		SetContext(ctx).
		SetFormData(map[string]string{"username": host.Username, "password": host.Password}).
		SetResult(&out).
		Post("/login")
	if err != nil {
		return nil, fmt.Errorf("login %s: %w", host.Name, err)
	}
	if resp.IsError() || !out.Success {
		return nil, fmt.Errorf("login %s: status %d: %s", host.Name, resp.StatusCode(), out.Msg)
	}
	return cli, nil
}

func (c *XUIClient) getInbound(ctx context.Context, cli *resty.Client, id int) (*inbound, error) {
	var out apiResponse
	resp, err := cli.R().SetContext(ctx).SetResult(&out).Get(fmt.Sprintf("/panel/api/inbounds/get/%d", id))
	if err != nil {
		return nil, err
	}
	if resp.IsError() || !out.Success {
		return nil, fmt.Errorf("get inbound %d: status %d: %s", id, resp.StatusCode(), out.Msg)
	}
	var ib inbound
	if err := json.Unmarshal(out.Obj, &ib); err != nil {
		return nil, fmt.Errorf("decode inbound: %w", err)
	}
	return &ib, nil
}

func findClient(ib *inbound, email string) (*xuiClient, error) {
	var s inboundSettings
	if err := json.Unmarshal([]byte(ib.Settings), &s); err != nil {
		return nil, fmt.Errorf("decode inbound settings: %w", err)
	}
	for i := range s.Clients {
		if s.Clients[i].Email == email {
			return &s.Clients[i], nil
		}
	}
	return nil, nil
}

// ProvisionOrExtend adds days to max(now, current expiry) so an extension never
// shortens a key that is still running.
func (c *XUIClient) ProvisionOrExtend(ctx context.Context, host *model.Host, identityLabel string, days int) (*model.ProvisionResult, error) {
	if host == nil || identityLabel == "" || days <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	res, err := c.provisionOrExtend(ctx, host, identityLabel, days)
	if err != nil {
		c.log.Error().Err(err).Str("host", host.Name).Str("email", identityLabel).Msg("panel call failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrProvisionFailed, err)
	}
	return res, nil
}

func (c *XUIClient) provisionOrExtend(ctx context.Context, host *model.Host, email string, days int) (*model.ProvisionResult, error) {
	cli, err := c.session(ctx, host)
	if err != nil {
		return nil, err
	}
	ib, err := c.getInbound(ctx, cli, host.InboundID)
	if err != nil {
		return nil, err
	}
	existing, err := findClient(ib, email)
	if err != nil {
		return nil, err
	}

	now := c.now()
	base := now
	client := xuiClient{ID: uuid.NewString(), Email: email, Enable: true, Flow: vlessFlow}
	if existing != nil {
		client = *existing
		client.Enable = true
		if cur := time.UnixMilli(existing.ExpiryTime); existing.ExpiryTime > 0 && cur.After(now) {
			base = cur
		}
	}
	client.ExpiryTime = base.Add(time.Duration(days) * 24 * time.Hour).UnixMilli()

	settings, _ := json.Marshal(inboundSettings{Clients: []xuiClient{client}})
	body := map[string]interface{}{"id": host.InboundID, "settings": string(settings)}

	path := "/panel/api/inbounds/addClient"
	if existing != nil {
		path = "/panel/api/inbounds/updateClient/" + url.PathEscape(client.ID)
	}
	var out apiResponse
	resp, err := cli.R().SetContext(ctx).SetBody(body).SetResult(&out).Post(path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() || !out.Success {
		return nil, fmt.Errorf("%s: status %d: %s", path, resp.StatusCode(), out.Msg)
	}

	conn, err := connectionString(host, ib, client.ID, email)
	if err != nil {
		return nil, err
	}
	return &model.ProvisionResult{
		ClientUUID:       client.ID,
		Email:            email,
		ExpiryMs:         client.ExpiryTime,
		ConnectionString: conn,
	}, nil
}

func (c *XUIClient) ConnectionInfo(ctx context.Context, host *model.Host, key *model.Key) (string, error) {
	if host == nil || key == nil {
		return "", domain.ErrInvalidArgument
	}
	cli, err := c.session(ctx, host)
	if err != nil {
		return "", err
	}
	ib, err := c.getInbound(ctx, cli, host.InboundID)
	if err != nil {
		return "", err
	}
	client, err := findClient(ib, key.Email)
	if err != nil {
		return "", err
	}
	if client == nil {
		return "", domain.ErrNotFound
	}
	return connectionString(host, ib, client.ID, key.Email)
}

// connectionString renders a vless:// link for a reality inbound.
func connectionString(host *model.Host, ib *inbound, clientID, email string) (string, error) {
	var ss streamSettings
	if err := json.Unmarshal([]byte(ib.StreamSettings), &ss); err != nil {
		return "", fmt.Errorf("decode stream settings: %w", err)
	}
	u, err := url.Parse(host.PanelURL)
	if err != nil || u.Hostname() == "" {
		return "", errors.New("panel url has no host")
	}
	network := ss.Network
	if network == "" {
		network = "tcp"
	}

	q := url.Values{}
	q.Set("type", network)
	q.Set("security", ss.Security)
	if ss.Security == "reality" {
		r := ss.RealitySettings
		q.Set("pbk", r.Settings.PublicKey)
		q.Set("fp", r.Settings.Fingerprint)
		if len(r.ServerNames) > 0 {
			q.Set("sni", r.ServerNames[0])
		}
		if len(r.ShortIDs) > 0 {
			q.Set("sid", r.ShortIDs[0])
		}
		q.Set("spx", "/")
		q.Set("flow", vlessFlow)
	}
	tag := email
	if ib.Remark != "" {
		tag = ib.Remark + "-" + email
	}
	return fmt.Sprintf("vless://%s@%s:%d?%s#%s", clientID, u.Hostname(), ib.Port, q.Encode(), url.PathEscape(tag)), nil
}
