package server

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestServeReturnsErrPersistenceFatalAfterTrigger(t *testing.T) {
	s := New(Config{ClientAddr: "127.0.0.1:0", PeerAddr: "127.0.0.1:0"}, Deps{})
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background()) }()

	cause := errors.New("disk full")
	s.triggerFatalShutdown(cause)

	select {
	case err := <-done:
		if !errors.Is(err, ErrPersistenceFatal) {
			t.Fatalf("Serve err = %v, want wrapping ErrPersistenceFatal", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after triggerFatalShutdown")
	}
}

func TestTriggerFatalShutdownKeepsFirstError(t *testing.T) {
	s := New(Config{ClientAddr: "127.0.0.1:0", PeerAddr: "127.0.0.1:0"}, Deps{})
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	s.triggerFatalShutdown(errors.New("first"))
	s.triggerFatalShutdown(errors.New("second"))

	err := s.Serve(context.Background())
	if !errors.Is(err, ErrPersistenceFatal) {
		t.Fatalf("Serve err = %v, want wrapping ErrPersistenceFatal", err)
	}
	if !strings.Contains(err.Error(), "first") || strings.Contains(err.Error(), "second") {
		t.Fatalf("expected first error to win, got %v", err)
	}
}
