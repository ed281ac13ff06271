package mq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/mlpipe/internal/domain"
	"github.com/shaiso/mlpipe/internal/tracker"
)

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []domain.PipelineStatus
	logs     []domain.LogEntry
	fail     bool
}

func (p *recordingPublisher) PublishStatus(_ context.Context, st domain.PipelineStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, st)
	if p.fail {
		return errors.New("channel closed")
	}
	return nil
}

func (p *recordingPublisher) PublishLog(_ context.Context, e domain.LogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logs = append(p.logs, e)
	if p.fail {
		return errors.New("channel closed")
	}
	return nil
}

func (p *recordingPublisher) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.statuses), len(p.logs)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRelay(t *testing.T, tr *tracker.Tracker, pub StatusPublisher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewRelay(tr, pub, discardLogger()).Run(ctx)
	}()
	require.Eventually(t, func() bool { return tr.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	return func() {
		cancel()
		<-done
	}
}

func TestRelay_ForwardsEvents(t *testing.T) {
	tr := tracker.New(discardLogger())
	pub := &recordingPublisher{}
	stop := startRelay(t, tr, pub)

	require.NoError(t, tr.Update(domain.PhaseUpload, domain.PhaseStatusCompleted, "ok"))
	tr.Log(domain.LogLevelWarning, "network not found")

	assert.Eventually(t, func() bool {
		s, l := pub.counts()
		return s == 1 && l == 2
	}, time.Second, 5*time.Millisecond)

	stop()
	assert.Equal(t, 0, tr.SubscriberCount())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, domain.PhaseUpload, pub.statuses[0].CurrentPhase)
	assert.Equal(t, domain.LogLevelWarning, pub.logs[1].Level)
}

func TestRelay_PublishErrorDoesNotStop(t *testing.T) {
	tr := tracker.New(discardLogger())
	pub := &recordingPublisher{fail: true}
	stop := startRelay(t, tr, pub)
	defer stop()

	tr.Reset()
	tr.Reset()

	assert.Eventually(t, func() bool {
		s, _ := pub.counts()
		return s == 2
	}, time.Second, 5*time.Millisecond)
}
