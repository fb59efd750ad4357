// Package storetest holds the behaviour every domain.SessionStore backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/travel-agent/internal/domain"
)

// Run exercises store against the SessionStore contract. Session IDs are
// random so persisted backends can share a database between runs.
func Run(t *testing.T, store domain.SessionStore) {
	t.Helper()

	t.Run("CreateAndLoad", func(t *testing.T) { testCreateAndLoad(t, store) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, store) })
	t.Run("MissingSession", func(t *testing.T) { testMissingSession(t, store) })
	t.Run("AppendReadAfterWrite", func(t *testing.T) { testAppendReadAfterWrite(t, store) })
	t.Run("LastActiveMonotonic", func(t *testing.T) { testLastActiveMonotonic(t, store) })
	t.Run("ClearKeepsRecord", func(t *testing.T) { testClearKeepsRecord(t, store) })
	t.Run("SaveReport", func(t *testing.T) { testSaveReport(t, store) })
	t.Run("ClearIdle", func(t *testing.T) { testClearIdle(t, store) })
}

// base is truncated to microseconds, the coarsest precision among backends.
var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T, store domain.SessionStore, at time.Time) *domain.Session {
	t.Helper()
	sess := &domain.Session{
		ID:           domain.SessionID(uuid.NewString()),
		CreatedBy:    "traveller@example.com",
		CreatedAt:    at,
		LastActiveAt: at,
		Notes:        "weekend in Kyoto",
		Agent: domain.Agent{
			ID:      "city-guide",
			Title:   "City Guide",
			Prompt:  "You are a cheerful city guide.",
			VoiceID: "voice-1",
		},
		Conversation: domain.GreetingHistory(),
	}
	require.NoError(t, store.CreateSession(context.Background(), sess))
	return sess
}

func testCreateAndLoad(t *testing.T, store domain.SessionStore) {
	ctx := context.Background()
	sess := newSession(t, store, base)

	got, err := store.LoadSession(ctx, sess.ID)
	require.NoError(t, err)

	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.CreatedBy, got.CreatedBy)
	assert.Equal(t, sess.Notes, got.Notes)
	assert.Equal(t, sess.Agent, got.Agent)
	assert.True(t, got.CreatedAt.Equal(base), "created_at %v", got.CreatedAt)
	assert.True(t, got.LastActiveAt.Equal(base), "last_active_at %v", got.LastActiveAt)
	assert.Equal(t, domain.GreetingHistory(), got.Conversation)
	assert.Nil(t, got.Report)
}

func testCreateDuplicate(t *testing.T, store domain.SessionStore) {
	sess := newSession(t, store, base)
	err := store.CreateSession(context.Background(), &domain.Session{ID: sess.ID, CreatedAt: base, LastActiveAt: base})
	assert.ErrorIs(t, err, domain.ErrSessionExists)
}

func testMissingSession(t *testing.T, store domain.SessionStore) {
	ctx := context.Background()
	id := domain.SessionID(uuid.NewString())

	_, err := store.LoadSession(ctx, id)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, store.AppendAndSave(ctx, id, base, domain.TextEntry(domain.RoleUser, "hi")), domain.ErrSessionNotFound)
	assert.ErrorIs(t, store.Touch(ctx, id, base), domain.ErrSessionNotFound)
	assert.ErrorIs(t, store.Clear(ctx, id), domain.ErrSessionNotFound)
	assert.ErrorIs(t, store.SaveReport(ctx, id, &domain.TravelReport{}, nil, base), domain.ErrSessionNotFound)
}

func testAppendReadAfterWrite(t *testing.T, store domain.SessionStore) {
	ctx := context.Background()
	sess := newSession(t, store, base)

	user := domain.ConversationEntry{
		Role: domain.RoleUser,
		Parts: []domain.Part{
			{Text: "What is this building?"},
			{InlineData: &domain.Blob{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}},
		},
	}
	model := domain.TextEntry(domain.RoleModel, `{"messages":[{"text":"Sure!","facialExpression":"smile","animation":"Talking_1"}]}`)

	require.NoError(t, store.AppendAndSave(ctx, sess.ID, base.Add(time.Minute), user, model))

	got, err := store.LoadSession(ctx, sess.ID)
	require.NoError(t, err)

	want := append(domain.GreetingHistory(), user, model)
	assert.Equal(t, want, got.Conversation)

	// The returned copy is detached from storage.
	got.Conversation[0].Parts[0].Text = "mutated"
	again, err := store.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GreetingText, again.Conversation[0].FirstText())
}

func testLastActiveMonotonic(t *testing.T, store domain.SessionStore) {
	ctx := context.Background()
	sess := newSession(t, store, base)
	later := base.Add(10 * time.Minute)

	require.NoError(t, store.AppendAndSave(ctx, sess.ID, later, domain.TextEntry(domain.RoleUser, "a")))
	require.NoError(t, store.AppendAndSave(ctx, sess.ID, base.Add(time.Minute), domain.TextEntry(domain.RoleUser, "b")))
	require.NoError(t, store.Touch(ctx, sess.ID, base))

	got, err := store.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActiveAt.Equal(later), "last_active_at went back to %v", got.LastActiveAt)
	assert.Len(t, got.Conversation, 4)

	require.NoError(t, store.Touch(ctx, sess.ID, later.Add(time.Second)))
	got, err = store.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActiveAt.Equal(later.Add(time.Second)))
}

func testClearKeepsRecord(t *testing.T, store domain.SessionStore) {
	ctx := context.Background()
	sess := newSession(t, store, base)
	require.NoError(t, store.SaveReport(ctx, sess.ID, &domain.TravelReport{Summary: "s"}, nil, base))

	require.NoError(t, store.Clear(ctx, sess.ID))

	got, err := store.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Conversation)
	assert.Nil(t, got.Report)
	assert.Equal(t, sess.Agent, got.Agent)

	require.NoError(t, store.AppendAndSave(ctx, sess.ID, base.Add(time.Minute), domain.GreetingHistory()...))
	got, err = store.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GreetingHistory(), got.Conversation)
}

func testSaveReport(t *testing.T, store domain.SessionStore) {
	ctx := context.Background()
	sess := newSession(t, store, base)

	report := &domain.TravelReport{
		Agent:       "City Guide",
		User:        "traveller@example.com",
		TripPurpose: "Leisure",
		Summary:     "Three days around Kyoto temples.",
		RecommendedItinerary: []domain.ItineraryStop{
			{Place: "Fushimi Inari", Mode: "Train", ETA: "9:00"},
		},
		Recommendations: []string{"Go early"},
	}
	transcript := []domain.TranscriptMessage{{Role: "user", Text: "Kyoto"}, {Role: "assistant", Text: "Lovely"}}
	require.NoError(t, store.SaveReport(ctx, sess.ID, report, transcript, base.Add(time.Hour)))

	// A second generation overwrites the first.
	report.Summary = "Two days around Kyoto temples."
	require.NoError(t, store.SaveReport(ctx, sess.ID, report, transcript, base.Add(2*time.Hour)))

	got, err := store.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Report)
	assert.Equal(t, "Two days around Kyoto temples.", got.Report.Summary)
	assert.Equal(t, report.RecommendedItinerary, got.Report.RecommendedItinerary)
	assert.Equal(t, transcript, got.Transcript)
	assert.Equal(t, domain.GreetingHistory(), got.Conversation)
	assert.True(t, got.LastActiveAt.Equal(base.Add(2*time.Hour)))
}

func testClearIdle(t *testing.T, store domain.SessionStore) {
	ctx := context.Background()
	stale := newSession(t, store, base.Add(-48*time.Hour))
	fresh := newSession(t, store, base)
	empty := newSession(t, store, base.Add(-48*time.Hour))
	require.NoError(t, store.Clear(ctx, empty.ID))

	cleared, err := store.ClearIdle(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Contains(t, cleared, stale.ID)
	assert.NotContains(t, cleared, fresh.ID)
	assert.NotContains(t, cleared, empty.ID)

	got, err := store.LoadSession(ctx, stale.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Conversation)

	got, err = store.LoadSession(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Len(t, got.Conversation, 2)
}
