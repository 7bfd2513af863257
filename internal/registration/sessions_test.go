package registration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T, previews *MemoryPreviews, idle time.Duration) *Sessions {
	t.Helper()
	factory := func(v Variant) (*Flow, error) {
		return NewFlow(v, Collaborators{Objects: &fakeObjects{}, Records: &fakeRecords{}, Previews: previews})
	}
	return NewSessions(factory, idle, nil)
}

func TestSessions_OpenAndGet(t *testing.T) {
	sessions := newTestSessions(t, NewMemoryPreviews(), time.Minute)

	id, flow, err := sessions.Open("demo_request")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, KindDemoRequest, flow.Variant().Kind)

	got, err := sessions.Get(id)
	require.NoError(t, err)
	assert.Same(t, flow, got)

	_, err = sessions.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessions_UnknownVariant(t *testing.T) {
	sessions := newTestSessions(t, NewMemoryPreviews(), time.Minute)
	_, _, err := sessions.Open("newsletter")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestSessions_CloseReleasesPreview(t *testing.T) {
	previews := NewMemoryPreviews()
	sessions := newTestSessions(t, previews, time.Minute)

	id, flow, err := sessions.Open("demo_request")
	require.NoError(t, err)
	require.NoError(t, flow.SelectAsset(context.Background(), pngAsset()))
	require.Equal(t, 1, previews.Len())

	require.NoError(t, sessions.Close(context.Background(), id))
	assert.Equal(t, 0, previews.Len())
	assert.ErrorIs(t, sessions.Close(context.Background(), id), ErrSessionNotFound)
}

func TestSessions_SweepExpiresIdle(t *testing.T) {
	previews := NewMemoryPreviews()
	sessions := newTestSessions(t, previews, 10*time.Minute)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return now }

	staleID, stale, err := sessions.Open("demo_request")
	require.NoError(t, err)
	require.NoError(t, stale.SelectAsset(context.Background(), pngAsset()))

	now = now.Add(8 * time.Minute)
	freshID, _, err := sessions.Open("early_access")
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	assert.Equal(t, 1, sessions.Sweep(context.Background()))

	_, err = sessions.Get(staleID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = sessions.Get(freshID)
	assert.NoError(t, err)
	assert.Equal(t, 0, previews.Len())
}

func TestSessions_CloseAll(t *testing.T) {
	sessions := newTestSessions(t, NewMemoryPreviews(), 0)
	for i := 0; i < 3; i++ {
		_, _, err := sessions.Open("hero_reserve")
		require.NoError(t, err)
	}
	assert.Equal(t, 0, sessions.Sweep(context.Background()), "expiry disabled")
	sessions.CloseAll(context.Background())
	assert.Equal(t, 0, sessions.Len())
}
