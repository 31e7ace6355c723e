package profiles

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/killfeed-indexer/internal/match"
)

type stubSource struct {
	profiles []match.Profile
	err      error
	calls    int
}

func (s *stubSource) WatchProfiles(ctx context.Context) ([]match.Profile, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.profiles, nil
}

func TestSnapshotStartsEmpty(t *testing.T) {
	p := New(&stubSource{}, time.Minute)
	assert.Empty(t, p.Snapshot())
}

func TestRefresh(t *testing.T) {
	src := &stubSource{profiles: []match.Profile{{ID: "p1"}, {ID: "p2"}}}
	p := New(src, time.Minute)

	require.NoError(t, p.Refresh(context.Background()))

	snap := p.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "p1", snap[0].ID)
}

func TestFailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	src := &stubSource{profiles: []match.Profile{{ID: "p1"}}}
	p := New(src, time.Minute)
	require.NoError(t, p.Refresh(context.Background()))

	src.err = errors.New("db unavailable")
	assert.Error(t, p.Refresh(context.Background()))
	assert.Len(t, p.Snapshot(), 1)
}

func TestRunPollsUntilCancelled(t *testing.T) {
	src := &stubSource{profiles: []match.Profile{{ID: "p1"}}}
	p := New(src, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(p.Snapshot()) == 1 && src.calls >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
