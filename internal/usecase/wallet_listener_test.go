//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/usecase"
)

func waitResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not finish")
		return nil
	}
}

func TestWalletListeners_SecondStartCancelsFirst(t *testing.T) {
	// --- Arrange ---
	w := usecase.NewWalletListeners(5*time.Millisecond, time.Second, newTestLogger())
	first := &MockWalletSession{}
	second := &MockWalletSession{}
	req := adapter.TransferRequest{Address: "EQ-wallet", AmountNano: 1, Memo: "pid"}

	// --- Act ---
	firstDone := w.Start(42, first, req)
	secondDone := w.Start(42, second, req)
	first.Connect()
	second.Connect()

	// --- Assert ---
	if err := waitResult(t, firstDone); !errors.Is(err, context.Canceled) {
		t.Fatalf("first listener should observe cancellation, got %v", err)
	}
	if err := waitResult(t, secondDone); err != nil {
		t.Fatalf("second listener failed: %v", err)
	}
	if n := len(first.Transfers()); n != 0 {
		t.Errorf("superseded listener sent %d transfers", n)
	}
	if n := len(second.Transfers()); n != 1 {
		t.Errorf("expected one transfer from the active listener, got %d", n)
	}
	if !first.Closed() || !second.Closed() {
		t.Error("sessions must be closed when listeners end")
	}
	if w.Active() != 0 {
		t.Errorf("registry not released, %d active", w.Active())
	}
}

func TestWalletListeners_Timeout(t *testing.T) {
	w := usecase.NewWalletListeners(2*time.Millisecond, 10*time.Millisecond, newTestLogger())
	s := &MockWalletSession{}

	err := waitResult(t, w.Start(1, s, adapter.TransferRequest{}))

	if !errors.Is(err, usecase.ErrWalletTimeout) {
		t.Fatalf("expected ErrWalletTimeout, got %v", err)
	}
	if w.Active() != 0 {
		t.Error("timed out listener must release its slot")
	}
}

func TestWalletListeners_WalletRejects(t *testing.T) {
	w := usecase.NewWalletListeners(2*time.Millisecond, time.Second, newTestLogger())
	rejected := errors.New("user rejected")
	s := &MockWalletSession{SendErr: rejected}
	s.Connect()

	if err := waitResult(t, w.Start(1, s, adapter.TransferRequest{})); !errors.Is(err, rejected) {
		t.Fatalf("expected wallet error, got %v", err)
	}
}

func TestWalletListeners_Stop(t *testing.T) {
	w := usecase.NewWalletListeners(5*time.Millisecond, time.Second, newTestLogger())
	done := w.Start(3, &MockWalletSession{}, adapter.TransferRequest{})
	w.Stop(3)
	if err := waitResult(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestWalletListeners_StopAll(t *testing.T) {
	w := usecase.NewWalletListeners(5*time.Millisecond, time.Second, newTestLogger())
	a := w.Start(4, &MockWalletSession{}, adapter.TransferRequest{})
	b := w.Start(5, &MockWalletSession{}, adapter.TransferRequest{})

	w.StopAll()

	for _, done := range []<-chan error{a, b} {
		if err := waitResult(t, done); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	}
	if n := w.Active(); n != 0 {
		t.Errorf("expected no active listeners, got %d", n)
	}
}
