package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shirosync/shirosync-server/internal/domain"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

type memoryAnomalies struct {
	saved []domain.MatchAnomaly
}

func (m *memoryAnomalies) RecordAnomaly(_ context.Context, a *domain.MatchAnomaly) error {
	a.ID = int64(len(m.saved) + 1)
	m.saved = append(m.saved, *a)
	return nil
}

func (m *memoryAnomalies) ListAnomalies(context.Context, int) ([]domain.MatchAnomaly, error) {
	return m.saved, nil
}

func TestNew(t *testing.T) {
	a := New(TypeSyncStarted, nil)
	b := New(TypeSyncStarted, nil)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, TypeSyncStarted, a.Type)
	assert.WithinDuration(t, time.Now(), a.Time, time.Minute)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "shirosync.sync.completed", Subject("", TypeSyncCompleted))
	assert.Equal(t, "prod.mapping.anomaly", Subject("prod", TypeAnomaly))
}

func TestAnomalyRecorder(t *testing.T) {
	st := &memoryAnomalies{}
	pub := &capturePublisher{err: errors.New("nats down")}
	rec := NewAnomalyRecorder(st, pub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	anomaly := &domain.MatchAnomaly{PrimaryID: 1, Chosen: 1, ChosenSource: "primary", Candidates: map[string]int{"primary": 1, "fallback": 2}}
	require.NoError(t, rec.RecordAnomaly(context.Background(), anomaly), "publish failure is not fatal")

	require.Len(t, st.saved, 1)
	require.Len(t, pub.events, 1)
	assert.Equal(t, TypeAnomaly, pub.events[0].Type)
	assert.Equal(t, int64(1), anomaly.ID)
}

func TestNATSPublisher(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}

	pub, err := NewNATSPublisher(url, "test", nil)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := pub.nc.SubscribeSync(pub.Subject(TypeSyncCompleted))
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), New(TypeSyncCompleted, map[string]int{"processed": 3})))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Data), `"type":"sync.completed"`)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), New(TypeSyncFailed, nil)))
	assert.NoError(t, p.Close())
}
