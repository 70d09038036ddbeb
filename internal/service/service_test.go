package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/metrics"
	"github.com/Skotchmaster/vending_machine/internal/models"
	"github.com/Skotchmaster/vending_machine/internal/repo/memory"
)

type recordedEvent struct {
	Topic string
	Key   string
	Event any
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
	fail   bool
}

func (r *recorder) PublishEvent(_ context.Context, topic, key string, event any) error {
	if r.fail {
		return errors.New("broker down")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Topic: topic, Key: key, Event: event})
	return nil
}

func (r *recorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Topic)
	}
	return out
}

func newMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func seedUser(t *testing.T, store *memory.Store, name string, role domain.Role, deposit int) *models.User {
	t.Helper()
	u := &models.User{Username: name, PasswordHash: "x", Role: role, Deposit: deposit}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}
