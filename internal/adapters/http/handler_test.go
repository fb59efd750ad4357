package httpadapter_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/PabloGalante/travel-agent/internal/adapters/http"
	"github.com/PabloGalante/travel-agent/internal/adapters/llm"
	"github.com/PabloGalante/travel-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/travel-agent/internal/app/conversation"
	"github.com/PabloGalante/travel-agent/internal/app/dialogue"
	"github.com/PabloGalante/travel-agent/internal/app/grounding"
	"github.com/PabloGalante/travel-agent/internal/app/report"
	"github.com/PabloGalante/travel-agent/internal/app/session"
	"github.com/PabloGalante/travel-agent/internal/app/synth"
	"github.com/PabloGalante/travel-agent/internal/domain"
	"github.com/PabloGalante/travel-agent/internal/observability"
)

const sureReply = `{"messages":[{"text":"Sure!","facialExpression":"smile","animation":"Talking_1"}]}`

type noPlaces struct{}

func (noPlaces) SearchNearby(context.Context, domain.PlacesQuery) ([]domain.Place, error) {
	return nil, nil
}

type fakeSpeech struct{}

func (fakeSpeech) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	return []byte(text), nil
}

type fakeVisemes struct{}

func (fakeVisemes) Extract(context.Context, string) (json.RawMessage, error) {
	return json.RawMessage(`{"mouthCues":[]}`), nil
}

type fakeGenerator struct{ reply string }

func (f fakeGenerator) Complete(context.Context, string, string) (string, error) {
	return f.reply, nil
}

type fakeVoices struct{}

func (fakeVoices) ListVoices(context.Context) ([]domain.Voice, error) {
	return []domain.Voice{{ID: "v1", Name: "Rachel"}}, nil
}

type testServer struct {
	handler http.Handler
	store   *memory.SessionStore
	llm     *llm.MockLLM
}

type serverOption func(*serverConfig)

type serverConfig struct {
	llm      *llm.MockLLM
	missing  []string
	voices   domain.VoiceCatalog
	maxBytes int64
}

func withLLM(m *llm.MockLLM) serverOption {
	return func(c *serverConfig) { c.llm = m }
}

func withMissing(keys ...string) serverOption {
	return func(c *serverConfig) { c.missing = keys }
}

func withVoices(v domain.VoiceCatalog) serverOption {
	return func(c *serverConfig) { c.voices = v }
}

func withMaxBytes(n int64) serverOption {
	return func(c *serverConfig) { c.maxBytes = n }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	cfg := serverConfig{llm: llm.NewMockLLM(), maxBytes: 1 << 20}
	for _, o := range opts {
		o(&cfg)
	}

	store := memory.NewSessionStore()
	convSvc := conversation.NewService(
		store,
		grounding.NewEnricher(noPlaces{}, time.Second),
		dialogue.NewEngine(cfg.llm, time.Second),
		synth.NewSynthesizer(fakeSpeech{}, fakeVisemes{}, synth.Options{Concurrency: 2, SegmentTimeout: time.Second}),
		conversation.Options{
			DefaultVoice:       "voice",
			TempDir:            t.TempDir(),
			MissingCredentials: func() []string { return cfg.missing },
		},
	)

	handler := httpadapter.NewServer(httpadapter.Services{
		Conversation: convSvc,
		Sessions:     session.NewService(store),
		Reports:      report.NewService(store, fakeGenerator{reply: `{"summary":"Temples and tea."}`}, time.Second),
		Sweeper:      session.NewSweeper(store, time.Hour, 0),
		Voices:       cfg.voices,
	}, cfg.maxBytes)

	return &testServer{handler: handler, store: store, llm: cfg.llm}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) createSession(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/sessions", map[string]any{
		"notes":         "Japan in spring",
		"createdBy":     "ana@example.com",
		"selectedAgent": map[string]any{"id": "guide", "title": "City Guide", "voiceId": "v1"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

type chatResult struct {
	Messages  []domain.ReplySegment      `json:"messages"`
	SessionID string                     `json:"sessionId"`
	History   []domain.ConversationEntry `json:"history"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/health"} {
		w := srv.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]string{"status": "OK", "message": "API is healthy"}, decode[map[string]string](t, w))
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestChatTurn(t *testing.T) {
	srv := newTestServer(t, withLLM(llm.NewMockLLM(sureReply)))
	id := srv.createSession(t)

	w := srv.do(t, http.MethodPost, "/chat", map[string]any{
		"message":   "Tokyo",
		"sessionId": id,
		"location":  map[string]float64{"latitude": 35.68, "longitude": 139.76},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode[chatResult](t, w)
	assert.Equal(t, id, got.SessionID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Sure!", got.Messages[0].Text)
	require.NotNil(t, got.Messages[0].Audio)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("Sure!")), *got.Messages[0].Audio)
	assert.Len(t, got.History, 4)
	assert.JSONEq(t, `{"mouthCues":[]}`, string(got.Messages[0].LipSync))

	w = srv.do(t, http.MethodGet, "/chat/history/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Tokyo"}, decode[map[string][]string](t, w)["messages"])
}

func TestChatImage(t *testing.T) {
	img := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	cases := map[string]any{
		"flat":        map[string]string{"data": img, "mimeType": "image/png"},
		"inline data": map[string]any{"inlineData": map[string]string{"data": img, "mimeType": "image/png"}},
		"data url":    map[string]string{"data": "data:image/png;base64," + img},
	}
	for name, image := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t)
			id := srv.createSession(t)

			w := srv.do(t, http.MethodPost, "/chat", map[string]any{"sessionId": id, "image": image})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			reqs := srv.llm.Requests()
			require.Len(t, reqs, 1)
			require.Len(t, reqs[0].Turn.Parts, 1)
			blob := reqs[0].Turn.Parts[0].InlineData
			require.NotNil(t, blob)
			assert.Equal(t, "image/png", blob.MIMEType)
			assert.Equal(t, []byte("jpeg-bytes"), blob.Data)
		})
	}
}

func TestChatBadRequests(t *testing.T) {
	srv := newTestServer(t)

	cases := map[string]any{
		"invalid json":       "{not json",
		"missing session id": map[string]any{"message": "hi"},
		"bad base64":         map[string]any{"sessionId": "s1", "image": map[string]string{"data": "!!!", "mimeType": "image/png"}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := srv.do(t, http.MethodPost, "/chat", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w := srv.do(t, http.MethodGet, "/chat", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestChatBodyTooLarge(t *testing.T) {
	srv := newTestServer(t, withMaxBytes(64))

	w := srv.do(t, http.MethodPost, "/chat", map[string]string{
		"sessionId": "s1",
		"message":   strings.Repeat("a", 200),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestChatNotConfigured(t *testing.T) {
	srv := newTestServer(t, withMissing("ELEVEN_LABS_API_KEY"))

	w := srv.do(t, http.MethodPost, "/chat", map[string]any{"sessionId": "s1", "message": "hi"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	got := decode[chatResult](t, w)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, domain.NotConfiguredText, got.Messages[0].Text)
	assert.Equal(t, "s1", got.SessionID)
	assert.Empty(t, srv.llm.Requests())
}

func TestChatModelFailure(t *testing.T) {
	srv := newTestServer(t, withLLM(llm.NewFailingLLM(errors.New("upstream 503"))))
	id := srv.createSession(t)

	w := srv.do(t, http.MethodPost, "/chat", map[string]any{"sessionId": id, "message": "Tokyo"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	got := decode[chatResult](t, w)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, domain.TurnFailureText, got.Messages[0].Text)
	assert.Equal(t, domain.ExpressionSad, got.Messages[0].FacialExpression)
	assert.Equal(t, domain.GreetingHistory(), got.History)
}

func TestChatHistoryLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	w := srv.do(t, http.MethodGet, "/chat/history/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{}, decode[map[string][]string](t, w)["messages"])

	w = srv.do(t, http.MethodDelete, "/chat/history/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Chat history cleared", decode[map[string]string](t, w)["message"])

	w = srv.do(t, http.MethodGet, "/chat/history/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = srv.do(t, http.MethodDelete, "/chat/history/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessions(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	w := srv.do(t, http.MethodGet, "/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, id, got["sessionId"])
	assert.Equal(t, "Japan in spring", got["notes"])
	assert.Equal(t, "City Guide", got["selectedAgent"].(map[string]any)["title"])

	w = srv.do(t, http.MethodGet, "/sessions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionsCleanup(t *testing.T) {
	srv := newTestServer(t)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, srv.store.CreateSession(context.Background(), &domain.Session{
		ID: "stale", CreatedAt: old, LastActiveAt: old, Conversation: domain.GreetingHistory(),
	}))
	fresh := srv.createSession(t)

	for _, method := range []string{http.MethodPost, http.MethodGet} {
		w := srv.do(t, method, "/sessions/cleanup", nil)
		require.Equal(t, http.StatusOK, w.Code)
		if method == http.MethodPost {
			assert.EqualValues(t, 1, decode[map[string]any](t, w)["cleared"])
		}
	}

	stale, err := srv.store.LoadSession(context.Background(), "stale")
	require.NoError(t, err)
	assert.Empty(t, stale.Conversation)

	kept, err := srv.store.LoadSession(context.Background(), domain.SessionID(fresh))
	require.NoError(t, err)
	assert.Len(t, kept.Conversation, 2)
}

func TestReports(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	w := srv.do(t, http.MethodGet, "/reports/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(t, http.MethodPost, "/reports", map[string]any{
		"sessionId":     id,
		"sessionDetail": map[string]string{"agent": "City Guide"},
		"messages":      []map[string]string{{"role": "user", "text": "I like temples"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Temples and tea.", decode[domain.TravelReport](t, w).Summary)

	w = srv.do(t, http.MethodGet, "/reports/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Temples and tea.", decode[domain.TravelReport](t, w).Summary)

	w = srv.do(t, http.MethodPost, "/reports", map[string]any{"sessionId": "unknown"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVoices(t *testing.T) {
	w := newTestServer(t).do(t, http.MethodGet, "/voices", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = newTestServer(t, withVoices(fakeVoices{})).do(t, http.MethodGet, "/voices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string][]domain.Voice](t, w)
	assert.Equal(t, []domain.Voice{{ID: "v1", Name: "Rachel"}}, got["voices"])
}

func TestCORSPreflight(t *testing.T) {
	w := newTestServer(t).do(t, http.MethodOptions, "/chat", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestChatTrimsSessionID(t *testing.T) {
	srv := newTestServer(t, withLLM(llm.NewMockLLM(sureReply)))
	id := srv.createSession(t)

	w := srv.do(t, http.MethodPost, "/chat", map[string]any{"sessionId": "  " + id + " ", "message": "hi"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, id, decode[chatResult](t, w).SessionID)

	sess, err := srv.store.LoadSession(context.Background(), domain.SessionID(id))
	require.NoError(t, err)
	assert.Len(t, sess.Conversation, 4)

	_, err = srv.store.LoadSession(context.Background(), domain.SessionID("  "+id+" "))
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionViewTranscript(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	w := srv.do(t, http.MethodPost, "/reports", map[string]any{
		"sessionId": id,
		"messages":  []map[string]string{{"role": "user", "text": "I like temples"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = srv.do(t, http.MethodGet, "/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, []any{map[string]any{"role": "user", "text": "I like temples"}}, got["transcript"])
	assert.NotContains(t, got, "conversation")
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	observability.SetOutput(&buf)
	t.Cleanup(func() { observability.SetOutput(os.Stdout) })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	newTestServer(t).handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var e map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		if e["msg"] == "http request" {
			entry = e
		}
	}
	require.NotNil(t, entry, buf.String())
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "/healthz", entry["path"])
	assert.EqualValues(t, http.StatusOK, entry["status"])
}
