package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sheettracker/api/internal/export"
	"sheettracker/api/internal/search"
	"sheettracker/api/internal/sheet"
)

const (
	maxBodyBytes  = 1 << 20
	maxResetBytes = 16 << 20
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, log zerolog.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: log}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.URL.Path == "/metrics" {
		if !allow(w, r, http.MethodGet) {
			return
		}
		w.Header().Del("Content-Type")
		s.service.Metrics().Handler().ServeHTTP(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch parts[1] {
	case "health":
		if len(parts) == 2 && allow(w, r, http.MethodGet, http.MethodHead) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	case "ready":
		if len(parts) == 2 && allow(w, r, http.MethodGet, http.MethodHead) {
			s.handleReady(w, r)
			return
		}
	case "sheet":
		s.handleSheet(w, r, parts[2:])
		return
	case "topics":
		s.handleTopics(w, r, parts[2:])
		return
	case "reorder":
		if len(parts) == 3 && allow(w, r, http.MethodPost) {
			s.handleReorder(w, r, parts[2])
			return
		}
	case "reset":
		if len(parts) == 2 && allow(w, r, http.MethodPost) {
			s.handleReset(w, r)
			return
		}
	case "stats":
		if len(parts) == 2 && allow(w, r, http.MethodGet) {
			writeJSON(w, http.StatusOK, s.service.Stats())
			return
		}
	case "search":
		if len(parts) == 2 && allow(w, r, http.MethodGet) {
			s.handleSearch(w, r)
			return
		}
	case "history":
		if len(parts) == 2 && allow(w, r, http.MethodGet) {
			s.handleHistory(w, r)
			return
		}
	case "export":
		if len(parts) == 2 && allow(w, r, http.MethodGet) {
			s.handleExport(w, r)
			return
		}
	}
	if rec, ok := w.(*statusRecorder); ok && rec.wrote {
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failures := s.service.Ping(ctx)
	checks := map[string]any{}
	for name := range s.service.checks {
		if err, failed := failures[name]; failed {
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	status, statusCode := "ready", http.StatusOK
	if len(failures) > 0 {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     len(failures) == 0,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSheet(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0:
		if allow(w, r, http.MethodGet) {
			writeJSON(w, http.StatusOK, s.service.Sheet())
		}
	case len(rest) == 1 && rest[0] == "meta":
		if !allow(w, r, http.MethodPut, http.MethodPatch) {
			return
		}
		var body sheet.MetaPatch
		if !s.decode(w, r, &body) {
			return
		}
		meta, err := s.service.UpdateMeta(r.Context(), body)
		s.respond(w, http.StatusOK, meta, err)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

// handleTopics serves /api/topics[/{tid}[/subtopics[/{sid}[/questions[/{qid}[/toggle]]]]]].
func (s *HTTPServer) handleTopics(w http.ResponseWriter, r *http.Request, rest []string) {
	ctx := r.Context()
	switch len(rest) {
	case 0:
		if !allow(w, r, http.MethodGet, http.MethodPost) {
			return
		}
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, s.service.Sheet().Topics)
			return
		}
		var body sheet.TopicInput
		if !s.decode(w, r, &body) {
			return
		}
		topic, err := s.service.CreateTopic(ctx, body)
		s.respond(w, http.StatusCreated, topic, err)
		return

	case 1:
		topicID := rest[0]
		if !allow(w, r, http.MethodPut, http.MethodDelete) {
			return
		}
		if r.Method == http.MethodDelete {
			s.respond(w, http.StatusOK, okBody, s.service.DeleteTopic(ctx, topicID))
			return
		}
		var body nameBody
		if !s.decode(w, r, &body) {
			return
		}
		topic, err := s.service.RenameTopic(ctx, topicID, body.Name)
		s.respond(w, http.StatusOK, topic, err)
		return
	}

	if rest[1] != "subtopics" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	s.handleSubTopics(w, r, rest[0], rest[2:])
}

func (s *HTTPServer) handleSubTopics(w http.ResponseWriter, r *http.Request, topicID string, rest []string) {
	ctx := r.Context()
	switch len(rest) {
	case 0:
		if !allow(w, r, http.MethodPost) {
			return
		}
		var body sheet.SubTopicInput
		if !s.decode(w, r, &body) {
			return
		}
		sub, err := s.service.CreateSubTopic(ctx, topicID, body)
		s.respond(w, http.StatusCreated, sub, err)
		return

	case 1:
		subID := rest[0]
		if !allow(w, r, http.MethodPut, http.MethodDelete) {
			return
		}
		if r.Method == http.MethodDelete {
			s.respond(w, http.StatusOK, okBody, s.service.DeleteSubTopic(ctx, topicID, subID))
			return
		}
		var body nameBody
		if !s.decode(w, r, &body) {
			return
		}
		sub, err := s.service.RenameSubTopic(ctx, topicID, subID, body.Name)
		s.respond(w, http.StatusOK, sub, err)
		return
	}

	if rest[1] != "questions" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	s.handleQuestions(w, r, topicID, rest[0], rest[2:])
}

func (s *HTTPServer) handleQuestions(w http.ResponseWriter, r *http.Request, topicID, subID string, rest []string) {
	ctx := r.Context()
	switch {
	case len(rest) == 0:
		if !allow(w, r, http.MethodPost) {
			return
		}
		var body sheet.QuestionInput
		if !s.decode(w, r, &body) {
			return
		}
		q, err := s.service.CreateQuestion(ctx, topicID, subID, body)
		s.respond(w, http.StatusCreated, q, err)

	case len(rest) == 1:
		questionID := rest[0]
		if !allow(w, r, http.MethodPut, http.MethodPatch, http.MethodDelete) {
			return
		}
		if r.Method == http.MethodDelete {
			s.respond(w, http.StatusOK, okBody, s.service.DeleteQuestion(ctx, topicID, subID, questionID))
			return
		}
		var body sheet.QuestionPatch
		if !s.decode(w, r, &body) {
			return
		}
		q, err := s.service.UpdateQuestion(ctx, topicID, subID, questionID, body)
		s.respond(w, http.StatusOK, q, err)

	case len(rest) == 2 && rest[1] == "toggle":
		if !allow(w, r, http.MethodPatch, http.MethodPost) {
			return
		}
		q, err := s.service.ToggleSolved(ctx, topicID, subID, rest[0])
		s.respond(w, http.StatusOK, q, err)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

type reorderBody struct {
	TopicID  string `json:"topicId"`
	SubID    string `json:"subId"`
	ActiveID string `json:"activeId"`
	OverID   string `json:"overId"`
}

func (s *HTTPServer) handleReorder(w http.ResponseWriter, r *http.Request, level string) {
	var body reorderBody
	if !s.decode(w, r, &body) {
		return
	}
	if body.ActiveID == "" || body.OverID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "activeId and overId are required", nil)
		return
	}

	ctx := r.Context()
	switch level {
	case "topics":
		topics, err := s.service.ReorderTopics(ctx, body.ActiveID, body.OverID)
		s.respond(w, http.StatusOK, map[string]any{"topics": topics}, err)
	case "subtopics":
		subs, err := s.service.ReorderSubTopics(ctx, body.TopicID, body.ActiveID, body.OverID)
		s.respond(w, http.StatusOK, map[string]any{"subTopics": subs}, err)
	case "questions":
		questions, err := s.service.ReorderQuestions(ctx, body.TopicID, body.SubID, body.ActiveID, body.OverID)
		s.respond(w, http.StatusOK, map[string]any{"questions": questions}, err)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxResetBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Body too large or unreadable", nil)
		return
	}
	sh, err := s.service.Reset(r.Context(), raw)
	s.respond(w, http.StatusOK, sh, err)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	writeJSON(w, http.StatusOK, s.service.Search(search.Query{
		Text:       query.Get("q"),
		Difficulty: query.Get("difficulty"),
		Limit:      limit,
	}))
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}
	entries, err := s.service.History(r.Context(), limit)
	s.respond(w, http.StatusOK, map[string]any{"items": entries}, err)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respond(w, 0, nil, err)
		return
	}
	result, err := s.service.Export(r.Context(), format)
	if err != nil {
		s.respond(w, 0, nil, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

type nameBody struct {
	Name string `json:"name"`
}

var okBody = map[string]any{"ok": true}

// respond writes payload with status, or the mapped error.
func (s *HTTPServer) respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, status, payload)
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

// allow reports whether r uses one of methods, writing a 405 otherwise.
func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, method := range methods {
		if r.Method == method {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	return false
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		s.service.metrics.observeRequest(r.Method, writer.status, elapsed)
		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.wrote = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// decodeBody reads a JSON body into target. An empty body leaves target as is.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
