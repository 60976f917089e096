package payment

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/nacl/box"

	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/domain/ports/adapter"
)

var _ adapter.WalletConnector = (*TonConnector)(nil)

// ErrUserRejected is returned when the wallet declines a transfer request.
var ErrUserRejected = errors.New("wallet rejected the request")

var errNotConnected = errors.New("wallet not connected")

// TonConnector opens TON Connect v2 sessions over an HTTP bridge.
type TonConnector struct {
	client       *resty.Client
	manifestURL  string
	universalURL string
	log          *zerolog.Logger
}

func NewTonConnector(cfg config.TonConnectConfig, logger *zerolog.Logger) *TonConnector {
	l := logger.With().Str("component", "tonconnect").Logger()
	return &TonConnector{
		client:       resty.New().SetBaseURL(strings.TrimRight(cfg.BridgeURL, "/")),
		manifestURL:  cfg.ManifestURL,
		universalURL: cfg.UniversalURL,
		log:          &l,
	}
}

// NewSession generates a fresh keypair and starts listening on the bridge for the wallet.
func (c *TonConnector) NewSession(ctx context.Context) (adapter.WalletSession, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(context.Background())
	s := &tonSession{
		conn:    c,
		pub:     pub,
		priv:    priv,
		id:      hex.EncodeToString(pub[:]),
		cancel:  cancel,
		replies: make(map[string]chan walletReply),
	}
	go s.listen(sctx)
	return s, nil
}

type walletReply struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	ID json.RawMessage `json:"id"`
}

type tonSession struct {
	conn   *TonConnector
	pub    *[32]byte
	priv   *[32]byte
	id     string
	cancel context.CancelFunc

	mu        sync.Mutex
	walletPub *[32]byte
	walletID  string
	address   string
	seq       int
	replies   map[string]chan walletReply
	closeOnce sync.Once
}

func (s *tonSession) ConnectURL() string {
	req, _ := json.Marshal(map[string]interface{}{
		"manifestUrl": s.conn.manifestURL,
		"items":       []map[string]string{{"name": "ton_addr"}},
	})
	q := url.Values{}
	q.Set("v", "2")
	q.Set("id", s.id)
	q.Set("r", string(req))
	q.Set("ret", "none")
	return s.conn.universalURL + "?" + q.Encode()
}

func (s *tonSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walletPub != nil
}

func (s *tonSession) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

// listen reads the bridge SSE stream until the session is closed.
func (s *tonSession) listen(ctx context.Context) {
	lastEventID := ""
	for ctx.Err() == nil {
		req := s.conn.client.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			SetHeader("Accept", "text/event-stream").
			SetQueryParam("client_id", s.id)
		if lastEventID != "" {
			req.SetQueryParam("last_event_id", lastEventID)
		}
		resp, err := req.Get("/events")
		if err != nil {
			if ctx.Err() == nil {
				s.conn.log.Warn().Err(err).Msg("bridge stream failed, reconnecting")
				sleepCtx(ctx, time.Second)
			}
			continue
		}
		lastEventID = s.readStream(ctx, resp.RawBody(), lastEventID)
		resp.RawBody().Close()
	}
}

func (s *tonSession) readStream(ctx context.Context, body io.Reader, lastEventID string) string {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	var data strings.Builder
	for sc.Scan() {
		if ctx.Err() != nil {
			return lastEventID
		}
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "id:"):
			lastEventID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if data.Len() > 0 {
				s.handleEvent([]byte(data.String()))
				data.Reset()
			}
		}
	}
	return lastEventID
}

type bridgeMessage struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

func (s *tonSession) handleEvent(raw []byte) {
	var bm bridgeMessage
	if err := json.Unmarshal(raw, &bm); err != nil || bm.From == "" {
		return
	}
	fromKey, err := hex.DecodeString(bm.From)
	if err != nil || len(fromKey) != 32 {
		return
	}
	var walletPub [32]byte
	copy(walletPub[:], fromKey)

	sealed, err := base64.StdEncoding.DecodeString(bm.Message)
	if err != nil || len(sealed) < 24 {
		return
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := box.Open(nil, sealed[24:], &nonce, &walletPub, s.priv)
	if !ok {
		s.conn.log.Warn().Msg("bridge message failed to decrypt")
		return
	}

	var ev struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(plain, &ev); err == nil && ev.Event != "" {
		s.handleWalletEvent(ev.Event, ev.Payload, &walletPub, bm.From)
		return
	}

	var reply walletReply
	if err := json.Unmarshal(plain, &reply); err != nil {
		return
	}
	id := strings.Trim(string(reply.ID), `"`)
	s.mu.Lock()
	ch := s.replies[id]
	delete(s.replies, id)
	s.mu.Unlock()
	if ch != nil {
		ch <- reply
	}
}

func (s *tonSession) handleWalletEvent(event string, payload json.RawMessage, walletPub *[32]byte, from string) {
	switch event {
	case "connect":
		var p struct {
			Items []struct {
				Name    string `json:"name"`
				Address string `json:"address"`
			} `json:"items"`
		}
		_ = json.Unmarshal(payload, &p)
		s.mu.Lock()
		s.walletPub = walletPub
		s.walletID = from
		for _, it := range p.Items {
			if it.Name == "ton_addr" {
				s.address = it.Address
			}
		}
		s.mu.Unlock()
		s.conn.log.Info().Str("address", s.address).Msg("wallet connected")
	case "disconnect":
		s.mu.Lock()
		s.walletPub = nil
		s.mu.Unlock()
	}
}

// SendTransaction pushes a transfer with the memo as a text comment and waits for the wallet's answer.
func (s *tonSession) SendTransaction(ctx context.Context, req adapter.TransferRequest) error {
	s.mu.Lock()
	walletPub, walletID := s.walletPub, s.walletID
	s.seq++
	id := strconv.Itoa(s.seq)
	ch := make(chan walletReply, 1)
	s.replies[id] = ch
	if walletPub == nil {
		delete(s.replies, id)
		s.mu.Unlock()
		return errNotConnected
	}
	s.mu.Unlock()

	msg := map[string]string{"address": req.Address, "amount": strconv.FormatInt(req.AmountNano, 10)}
	if req.Memo != "" {
		msg["payload"] = CommentPayload(req.Memo)
	}
	params, _ := json.Marshal(map[string]interface{}{
		"valid_until": req.ValidUntil,
		"messages":    []map[string]string{msg},
	})
	rpc, _ := json.Marshal(map[string]interface{}{
		"method": "sendTransaction",
		"params": []string{string(params)},
		"id":     id,
	})

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}
	sealed := box.Seal(nonce[:], rpc, &nonce, walletPub, s.priv)

	resp, err := s.conn.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"client_id": s.id,
			"to":        walletID,
			"ttl":       "300",
			"topic":     "sendTransaction",
		}).
		SetBody(base64.StdEncoding.EncodeToString(sealed)).
		Post("/message")
	if err != nil {
		return fmt.Errorf("bridge send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("bridge send: status %d", resp.StatusCode())
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-ch:
		if r.Error != nil {
			if r.Error.Code == 300 {
				return ErrUserRejected
			}
			return fmt.Errorf("wallet error %d: %s", r.Error.Code, r.Error.Message)
		}
		return nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
