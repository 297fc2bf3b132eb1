package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ragui/dify-relay/internal/middleware"
	"github.com/ragui/dify-relay/internal/relay"
	"github.com/ragui/dify-relay/internal/service"
)

// TargetResolver resolves the upstream endpoint for a relay request.
type TargetResolver interface {
	// GlobalTarget resolves the globally configured endpoint.
	GlobalTarget(ctx context.Context) (*service.Target, error)
	// AppTarget resolves a named app; unknown or deactivated apps fail
	// with a not-found error.
	AppTarget(ctx context.Context, id int64) (*service.Target, error)
}

// Relay forwards requests to the upstream endpoint.
type Relay interface {
	UploadDocument(ctx context.Context, target *service.Target, file io.Reader, filename, contentType, user string) ([]byte, error)
	StreamChat(ctx context.Context, target *service.Target, chat relay.ChatRequest, w io.Writer) error
}

// ChatHandler handles the chat relay and document upload endpoints.
type ChatHandler struct {
	Targets TargetResolver
	Relay   Relay
	Log     *zap.Logger
}

// ChatRequest represents the JSON payload for a chat request.
type ChatRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
}

// Chat relays a chat request through the globally configured endpoint.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	target, err := h.Targets.GlobalTarget(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	h.stream(w, r, target)
}

// ChatWithApp relays a chat request through a named app. Deactivated
// and unknown apps both answer 404.
func (h *ChatHandler) ChatWithApp(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid app id")
		return
	}

	target, err := h.Targets.AppTarget(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.stream(w, r, target)
}

// countingWriter tracks whether any bytes reached the client, so a
// failure before the first forwarded chunk can still produce a clean
// error status.
type countingWriter struct {
	http.ResponseWriter
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.ResponseWriter.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countingWriter) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, target *service.Target) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeDetail(w, http.StatusBadRequest, "Query is required")
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		writeDetail(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	cw := &countingWriter{ResponseWriter: w}
	// The request context aborts the upstream call when the caller
	// disconnects mid-stream.
	err := h.Relay.StreamChat(r.Context(), target, relay.ChatRequest{
		Query:          req.Query,
		ConversationID: req.ConversationID,
		User:           user.Username,
	}, cw)
	if err != nil {
		if cw.n == 0 {
			writeError(w, err)
			return
		}
		// Too late for a status change; the stream just ends early.
		h.Log.Error("chat stream aborted", zap.Error(err))
	}
}

// UploadDocument forwards a document to the globally configured
// endpoint and returns the upstream JSON response verbatim.
func (h *ChatHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	target, err := h.Targets.GlobalTarget(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		writeDetail(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	body, err := h.Relay.UploadDocument(r.Context(), target, file,
		header.Filename, header.Header.Get("Content-Type"), user.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
