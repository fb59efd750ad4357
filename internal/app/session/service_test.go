package session_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/travel-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/travel-agent/internal/app/session"
	"github.com/PabloGalante/travel-agent/internal/domain"
)

func TestCreateSeedsGreeting(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	svc := session.NewService(store)

	sess, err := svc.Create(ctx, session.CreateInput{
		CreatedBy: "traveller@example.com",
		Notes:     "honeymoon",
		Agent:     domain.Agent{ID: "guide", VoiceID: "v1"},
	})
	require.NoError(t, err)

	_, err = uuid.Parse(string(sess.ID))
	assert.NoError(t, err)
	assert.Equal(t, sess.CreatedAt, sess.LastActiveAt)

	got, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GreetingHistory(), got.Conversation)
	assert.Equal(t, "honeymoon", got.Notes)
	assert.Equal(t, "v1", got.Agent.VoiceID)
}

func TestGetUnknown(t *testing.T) {
	_, err := session.NewService(memory.NewSessionStore()).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestUserMessages(t *testing.T) {
	history := append(domain.GreetingHistory(),
		domain.TextEntry(domain.RoleUser, "Tokyo"),
		domain.TextEntry(domain.RoleModel, `{"messages":[{"text":"Sure!"}]}`),
		domain.ConversationEntry{Role: domain.RoleUser, Parts: []domain.Part{{InlineData: &domain.Blob{MIMEType: "image/png"}}}},
		domain.TextEntry(domain.RoleModel, `{"messages":[{"text":"Nice photo"}]}`),
		// A user typing Hello later is a real message.
		domain.TextEntry(domain.RoleUser, "Hello"),
		domain.TextEntry(domain.RoleModel, `{"messages":[{"text":"Hi again"}]}`),
	)

	assert.Equal(t, []string{"Tokyo", "Hello"}, session.UserMessages(history))
	assert.Equal(t, []string{}, session.UserMessages(nil))
}

func TestClearHistory(t *testing.T) {
	ctx := context.Background()
	svc := session.NewService(memory.NewSessionStore())

	sess, err := svc.Create(ctx, session.CreateInput{})
	require.NoError(t, err)

	require.NoError(t, svc.ClearHistory(ctx, sess.ID))
	msgs, err := svc.UserMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.ErrorIs(t, svc.ClearHistory(ctx, "missing"), domain.ErrSessionNotFound)
	_, err = svc.UserMessages(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
