package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/infra/metrics"
)

// ErrWalletTimeout is reported when no wallet connected before the listener gave up.
var ErrWalletTimeout = errors.New("wallet did not connect in time")

type listenerEntry struct {
	id     uint64
	cancel context.CancelFunc
}

// WalletListeners runs at most one wallet listener per user. Starting a listener for a
// user cancels the previous one; every listener removes its own entry when it ends.
type WalletListeners struct {
	mu     sync.Mutex
	active map[int64]listenerEntry
	seq    uint64

	interval time.Duration
	attempts int
	log      *zerolog.Logger
}

// NewWalletListeners polls the wallet every interval, at most timeout/interval times.
func NewWalletListeners(interval, timeout time.Duration, logger *zerolog.Logger) *WalletListeners {
	if interval <= 0 {
		interval = time.Second
	}
	attempts := int(timeout / interval)
	if attempts <= 0 {
		attempts = 120
	}
	return &WalletListeners{
		active:   make(map[int64]listenerEntry),
		interval: interval,
		attempts: attempts,
		log:      logger,
	}
}

// Start launches a listener that waits for the session to connect and then pushes req.
// The returned channel receives exactly one result: nil after the wallet accepted the
// request, context.Canceled when superseded or stopped, ErrWalletTimeout, or the
// wallet's error.
func (w *WalletListeners) Start(userID int64, session adapter.WalletSession, req adapter.TransferRequest) <-chan error {
	ctx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	if prev, ok := w.active[userID]; ok {
		prev.cancel()
	}
	w.seq++
	id := w.seq
	w.active[userID] = listenerEntry{id: id, cancel: cancel}
	metrics.SetWalletListeners(len(w.active))
	w.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		err := w.listen(ctx, session, req)
		cancel()
		_ = session.Close()
		w.release(userID, id)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.log.Warn().Err(err).Int64("user", userID).Msg("wallet listener ended")
		}
		done <- err
	}()
	return done
}

// Stop cancels the user's listener, if any.
func (w *WalletListeners) Stop(userID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.active[userID]; ok {
		e.cancel()
	}
}

// StopAll cancels every running listener; used on shutdown.
func (w *WalletListeners) StopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.active {
		e.cancel()
	}
}

// Active returns the number of running listeners.
func (w *WalletListeners) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active)
}

func (w *WalletListeners) listen(ctx context.Context, session adapter.WalletSession, req adapter.TransferRequest) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for i := 0; i < w.attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if session.Connected() {
			return session.SendTransaction(ctx, req)
		}
	}
	return ErrWalletTimeout
}

// release drops the entry only if it still belongs to listener id.
func (w *WalletListeners) release(userID int64, id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.active[userID]; ok && e.id == id {
		delete(w.active, userID)
	}
	metrics.SetWalletListeners(len(w.active))
}
