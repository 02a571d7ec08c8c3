package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/lobbychat/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

// memStore is an in-memory store.MessageStore for hub tests.
type memStore struct {
	mu       sync.Mutex
	messages []*store.Message
	failSave bool
}

var errStoreDown = errors.New("store down")

func (m *memStore) SaveMessage(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errStoreDown
	}
	msg.ID = int64(len(m.messages) + 1)
	cp := *msg
	m.messages = append(m.messages, &cp)
	return nil
}

func (m *memStore) ListMessages(_ context.Context, limit int) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.messages
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]*store.Message(nil), out...), nil
}

func (m *memStore) ClearMessages(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.messages))
	m.messages = nil
	return n, nil
}

func (m *memStore) CountMessages(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.messages)), nil
}

func startHub(t *testing.T, st store.MessageStore, opts Options) *Hub {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(st, nil, opts)
	go hub.Run(ctx)
	return hub
}
