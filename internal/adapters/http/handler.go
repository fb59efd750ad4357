package httpadapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/PabloGalante/travel-agent/internal/app/conversation"
	"github.com/PabloGalante/travel-agent/internal/app/dialogue"
	"github.com/PabloGalante/travel-agent/internal/app/report"
	"github.com/PabloGalante/travel-agent/internal/app/session"
	"github.com/PabloGalante/travel-agent/internal/domain"
	"github.com/PabloGalante/travel-agent/internal/observability"
)

// Services are the application services exposed over HTTP. Voices may be
// nil when no speech provider is configured.
type Services struct {
	Conversation *conversation.Service
	Sessions     *session.Service
	Reports      *report.Service
	Sweeper      *session.Sweeper
	Voices       domain.VoiceCatalog
}

type Server struct {
	svc Services
}

// NewServer returns the API handler with its middleware applied.
func NewServer(svc Services, maxBodyBytes int64) http.Handler {
	s := &Server{svc: svc}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/health", s.handleHealth)

	// /chat                → POST: process one turn
	// /chat/history/{id}   → GET: user messages, DELETE: clear history
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/chat/history/", s.handleChatHistory)

	// /sessions            → POST: create session
	// /sessions/{id}       → GET: session view
	// /sessions/cleanup    → POST|GET: sweep idle sessions
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessionWithID)

	// /reports             → POST: generate report
	// /reports/{id}        → GET: stored report
	mux.HandleFunc("/reports", s.handleReports)
	mux.HandleFunc("/reports/", s.handleReportWithID)

	mux.HandleFunc("/voices", s.handleVoices)

	return chainMiddlewares(mux,
		withBodyLimit(maxBodyBytes),
		withCORS,
		withLogging,
		withRequestID,
	)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type imagePayload struct {
	Data       string        `json:"data"`
	MIMEType   string        `json:"mimeType"`
	InlineData *imagePayload `json:"inlineData,omitempty"`
}

type chatRequest struct {
	Message   string           `json:"message"`
	Image     *imagePayload    `json:"image,omitempty"`
	Location  *domain.Location `json:"location,omitempty"`
	SessionID string           `json:"sessionId"`
}

type chatResponse struct {
	Messages  []domain.ReplySegment      `json:"messages"`
	SessionID string                     `json:"sessionId"`
	History   []domain.ConversationEntry `json:"history,omitempty"`
}

type historyResponse struct {
	Messages []string `json:"messages"`
}

type createSessionRequest struct {
	Notes         string       `json:"notes"`
	SelectedAgent domain.Agent `json:"selectedAgent"`
	CreatedBy     string       `json:"createdBy"`
}

type sessionResponse struct {
	SessionID     string                     `json:"sessionId"`
	CreatedBy     string                     `json:"createdBy"`
	Notes         string                     `json:"notes"`
	SelectedAgent domain.Agent               `json:"selectedAgent"`
	CreatedAt     time.Time                  `json:"createdOn"`
	LastActiveAt  time.Time                  `json:"lastActiveAt"`
	Report        *domain.TravelReport       `json:"report,omitempty"`
	Transcript    []domain.TranscriptMessage `json:"transcript,omitempty"`
}

type reportRequest struct {
	SessionID     string                     `json:"sessionId"`
	SessionDetail json.RawMessage            `json:"sessionDetail"`
	Messages      []domain.TranscriptMessage `json:"messages"`
}

type cleanupResponse struct {
	Message string `json:"message"`
	Cleared int    `json:"cleared"`
}

// ─────────────────────────────────────────────
// Health
// ─────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "OK",
		"message": "API is healthy",
	})
}

// ─────────────────────────────────────────────
// Chat
// ─────────────────────────────────────────────

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		badRequest(w, "sessionId is required")
		return
	}

	image, err := req.Image.decode()
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	// The turn runs to completion even if the client goes away so the
	// history is saved and the workspace released.
	ctx := context.WithoutCancel(r.Context())

	out, err := s.svc.Conversation.ProcessTurn(ctx, conversation.TurnInput{
		SessionID: domain.SessionID(req.SessionID),
		Text:      req.Message,
		Image:     image,
		Location:  req.Location,
	})
	if err != nil {
		writeTurnError(ctx, w, req.SessionID, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Messages:  out.Segments,
		SessionID: string(out.SessionID),
		History:   out.History,
	})
}

func writeTurnError(ctx context.Context, w http.ResponseWriter, sessionID string, err error) {
	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)

	if errors.Is(err, conversation.ErrNotConfigured) {
		log.Error("chat rejected", "error", err)
		writeJSON(w, http.StatusInternalServerError, chatResponse{
			Messages:  []domain.ReplySegment{{Text: domain.NotConfiguredText}},
			SessionID: sessionID,
		})
		return
	}

	resp := chatResponse{
		Messages:  []domain.ReplySegment{domain.TurnFailureSegment()},
		SessionID: sessionID,
	}
	var turnErr *conversation.TurnError
	if errors.As(err, &turnErr) {
		resp.History = turnErr.History
		log = log.With("state", turnErr.State)
	}
	log.Error("chat turn failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, resp)
}

// decode accepts {data, mimeType} or {inlineData: {data, mimeType}}.
// A data URL prefix on data is tolerated.
func (p *imagePayload) decode() (*dialogue.Image, error) {
	if p == nil {
		return nil, nil
	}
	if p.InlineData != nil && p.Data == "" {
		p = p.InlineData
	}
	if p.Data == "" {
		return nil, nil
	}

	data := p.Data
	mimeType := p.MIMEType
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, errors.New("image data is not valid base64")
		}
		if mimeType == "" {
			mimeType, _, _ = strings.Cut(header, ";")
		}
		data = payload
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, errors.New("image data is not valid base64")
	}
	return &dialogue.Image{MIMEType: mimeType, Data: raw}, nil
}

// /chat/history/{id}
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/chat/history/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	sessionID := domain.SessionID(id)

	switch r.Method {
	case http.MethodGet:
		msgs, err := s.svc.Sessions.UserMessages(r.Context(), sessionID)
		if err != nil {
			writeLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, historyResponse{Messages: msgs})

	case http.MethodDelete:
		if err := s.svc.Sessions.ClearHistory(r.Context(), sessionID); err != nil {
			writeLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Chat history cleared"})

	default:
		methodNotAllowed(w)
	}
}

// ─────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────

// /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSession(w, r)
	default:
		methodNotAllowed(w)
	}
}

// /sessions/{id} or /sessions/cleanup
func (s *Server) handleSessionWithID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}

	if id == "cleanup" {
		switch r.Method {
		case http.MethodGet, http.MethodPost:
			s.handleCleanup(w, r)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sess, err := s.svc.Sessions.Get(r.Context(), domain.SessionID(id))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := s.svc.Sessions.Create(r.Context(), session.CreateInput{
		CreatedBy: req.CreatedBy,
		Notes:     req.Notes,
		Agent:     req.SelectedAgent,
	})
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	cleared, err := s.svc.Sweeper.SweepOnce(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{
		Message: "Cleanup completed",
		Cleared: len(cleared),
	})
}

// ─────────────────────────────────────────────
// Reports
// ─────────────────────────────────────────────

// /reports
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req reportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		badRequest(w, "sessionId is required")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	rep, err := s.svc.Reports.Generate(ctx, report.GenerateInput{
		SessionID:     domain.SessionID(req.SessionID),
		SessionDetail: req.SessionDetail,
		Messages:      req.Messages,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			notFound(w, "session not found")
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to generate report",
		})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// /reports/{id}
func (s *Server) handleReportWithID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/reports/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}

	rep, err := s.svc.Reports.Get(r.Context(), domain.SessionID(id))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ─────────────────────────────────────────────
// Voices
// ─────────────────────────────────────────────

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.svc.Voices == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "voice catalog is not configured",
		})
		return
	}

	voices, err := s.svc.Voices.ListVoices(r.Context())
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("listing voices failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to list voices"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": voices})
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		SessionID:     string(s.ID),
		CreatedBy:     s.CreatedBy,
		Notes:         s.Notes,
		SelectedAgent: s.Agent,
		CreatedAt:     s.CreatedAt,
		LastActiveAt:  s.LastActiveAt,
		Report:        s.Report,
		Transcript:    s.Transcript,
	}
}

// decodeJSON reads the body into v and writes the error response itself
// when it can't.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "request body too large",
			})
			return false
		}
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		notFound(w, "session not found")
	case errors.Is(err, domain.ErrReportNotFound):
		notFound(w, "report not found")
	default:
		internalError(w, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": msg,
	})
}

func internalError(w http.ResponseWriter, err error) {
	observability.Logger().Error("internal error", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}
