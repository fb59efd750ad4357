package report_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/travel-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/travel-agent/internal/app/report"
	"github.com/PabloGalante/travel-agent/internal/domain"
)

type fakeGenerator struct {
	reply        string
	err          error
	system, user string
}

func (f *fakeGenerator) Complete(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.reply, f.err
}

func newStore(t *testing.T) *memory.SessionStore {
	t.Helper()
	store := memory.NewSessionStore()
	require.NoError(t, store.CreateSession(context.Background(), &domain.Session{
		ID:           "s1",
		Notes:        "Kyoto trip",
		Agent:        domain.Agent{ID: "guide", Title: "City Guide"},
		LastActiveAt: time.Now(),
		Conversation: domain.GreetingHistory(),
	}))
	return store
}

const fenced = "```json\n{\"agent\":\"City Guide\",\"summary\":\"Temples and tea.\",\"recommendedItinerary\":[{\"place\":\"Kinkaku-ji\",\"mode\":\"Bus\",\"eta\":\"30 min\"}],\"recommendations\":[\"Go early\"]}\n```"

func TestGenerateStoresReport(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	gen := &fakeGenerator{reply: fenced}
	svc := report.NewService(store, gen, time.Second)

	transcript := []domain.TranscriptMessage{{Role: "user", Text: "I want temples"}}
	got, err := svc.Generate(ctx, report.GenerateInput{
		SessionID:     "s1",
		SessionDetail: json.RawMessage(`{"agent":"City Guide"}`),
		Messages:      transcript,
	})
	require.NoError(t, err)
	assert.Equal(t, "Temples and tea.", got.Summary)
	assert.Equal(t, []domain.ItineraryStop{{Place: "Kinkaku-ji", Mode: "Bus", ETA: "30 min"}}, got.RecommendedItinerary)

	assert.Contains(t, gen.system, "recommendedItinerary")
	assert.Equal(t, `AI Travel Agent Info:{"agent":"City Guide"}, Conversation:[{"role":"user","text":"I want temples"}]`, gen.user)

	stored, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, got, stored)

	sess, err := store.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, transcript, sess.Transcript)
	assert.Equal(t, domain.GreetingHistory(), sess.Conversation, "model history is left alone")
}

func TestGenerateFallsBackToStoredDetail(t *testing.T) {
	gen := &fakeGenerator{reply: `{"summary":"ok"}`}
	svc := report.NewService(newStore(t), gen, time.Second)

	_, err := svc.Generate(context.Background(), report.GenerateInput{SessionID: "s1"})
	require.NoError(t, err)
	assert.Contains(t, gen.user, `"notes":"Kyoto trip"`)
	assert.Contains(t, gen.user, `Conversation:null`)
}

func TestGenerateErrors(t *testing.T) {
	ctx := context.Background()

	_, err := report.NewService(newStore(t), &fakeGenerator{reply: "{}"}, time.Second).
		Generate(ctx, report.GenerateInput{SessionID: "missing"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	boom := errors.New("rate limited")
	_, err = report.NewService(newStore(t), &fakeGenerator{err: boom}, time.Second).
		Generate(ctx, report.GenerateInput{SessionID: "s1"})
	assert.ErrorIs(t, err, boom)

	_, err = report.NewService(newStore(t), &fakeGenerator{reply: "Here is your report!"}, time.Second).
		Generate(ctx, report.GenerateInput{SessionID: "s1"})
	assert.ErrorContains(t, err, "decode report")

	_, err = report.NewService(newStore(t), nil, time.Second).
		Generate(ctx, report.GenerateInput{SessionID: "s1"})
	assert.ErrorContains(t, err, "not configured")
}

func TestGetWithoutReport(t *testing.T) {
	svc := report.NewService(newStore(t), nil, time.Second)

	_, err := svc.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrReportNotFound)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestParseReport(t *testing.T) {
	for _, raw := range []string{
		`{"summary":"x"}`,
		"```json\n{\"summary\":\"x\"}\n```",
		"```\n{\"summary\":\"x\"}```",
		"  {\"summary\":\"x\"}  \n",
	} {
		got, err := report.ParseReport(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, "x", got.Summary)
	}
}
