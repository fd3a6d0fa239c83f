package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-relay/internal/domain"
)

func TestMemoryStore_MissingKeyReturnsIdle(t *testing.T) {
	store := NewMemoryStore(time.Minute, 10)

	sess, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, sess.State)
	assert.Equal(t, "user-1", sess.UserID)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Minute, 10)

	sess := NewIdle("user-1")
	sess.State = StateSelectingPriority
	sess.Category = domain.TicketCategoryError
	require.NoError(t, store.Put(context.Background(), sess))

	got, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StateSelectingPriority, got.State)
	assert.Equal(t, domain.TicketCategoryError, got.Category)
}

func TestMemoryStore_ExpiredSessionDecaysToIdle(t *testing.T) {
	store := NewMemoryStore(10*time.Minute, 10)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return base })

	sess := NewIdle("user-1")
	sess.State = StateAwaitingIssueText
	require.NoError(t, store.Put(context.Background(), sess))

	store.SetClock(func() time.Time { return base.Add(11 * time.Minute) })
	got, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, got.State)
}

func TestMemoryStore_EvictsStalestWhenFull(t *testing.T) {
	store := NewMemoryStore(time.Hour, 2)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	store.SetClock(func() time.Time { return base })
	first := NewIdle("user-1")
	first.State = StateSelectingCategory
	require.NoError(t, store.Put(context.Background(), first))

	store.SetClock(func() time.Time { return base.Add(time.Minute) })
	second := NewIdle("user-2")
	second.State = StateSelectingCategory
	require.NoError(t, store.Put(context.Background(), second))

	store.SetClock(func() time.Time { return base.Add(2 * time.Minute) })
	third := NewIdle("user-3")
	third.State = StateSelectingCategory
	require.NoError(t, store.Put(context.Background(), third))

	evicted, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, evicted.State)

	kept, err := store.Get(context.Background(), "user-3")
	require.NoError(t, err)
	assert.Equal(t, StateSelectingCategory, kept.State)
}

func TestMemoryStore_ClearIsIdempotent(t *testing.T) {
	store := NewMemoryStore(time.Minute, 10)
	sess := NewIdle("user-1")
	sess.State = StateAwaitingFeedbackComment
	require.NoError(t, store.Put(context.Background(), sess))

	require.NoError(t, store.Clear(context.Background(), "user-1"))
	require.NoError(t, store.Clear(context.Background(), "user-1"))

	got, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, got.State)
}
