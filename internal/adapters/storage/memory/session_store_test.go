package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/travel-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/travel-agent/internal/adapters/storage/storetest"
	"github.com/PabloGalante/travel-agent/internal/domain"
)

func TestSessionStoreContract(t *testing.T) {
	storetest.Run(t, memory.NewSessionStore())
}

func TestCreateSessionCopiesInput(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()

	sess := &domain.Session{ID: "s1", LastActiveAt: time.Now(), Conversation: domain.GreetingHistory()}
	require.NoError(t, store.CreateSession(ctx, sess))

	sess.Conversation[1].Parts[0].Text = "changed after create"

	got, err := store.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.WelcomeReply, got.Conversation[1].FirstText())
}

func TestClearIdleReturnsSortedIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	old := time.Now().Add(-time.Hour)

	for _, id := range []domain.SessionID{"c", "a", "b"} {
		require.NoError(t, store.CreateSession(ctx, &domain.Session{ID: id, LastActiveAt: old, Conversation: domain.GreetingHistory()}))
	}

	cleared, err := store.ClearIdle(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"a", "b", "c"}, cleared)

	cleared, err = store.ClearIdle(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, cleared)
}
