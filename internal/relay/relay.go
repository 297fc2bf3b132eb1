// Package relay forwards document uploads and streaming chat requests
// to an upstream Dify endpoint, passing response chunks through to the
// caller as they arrive.
package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ragui/dify-relay/internal/service"
)

// dataPrefix is the SSE event-data marker.
const dataPrefix = "data: "

// UpstreamError reports a failed call to the Dify endpoint, either a
// network-level failure or a non-2xx response.
type UpstreamError struct {
	// Status is the upstream HTTP status code, or 0 for network failures.
	Status int
	// Detail is a sanitized description of the failure.
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("upstream request failed: %s", e.Detail)
}

// ChatRequest is a chat relay request.
type ChatRequest struct {
	// Query is the user's message. Required.
	Query string
	// ConversationID optionally continues an existing conversation.
	// Values that are not syntactically valid UUIDs are dropped so the
	// upstream mints a fresh conversation instead of rejecting the call.
	ConversationID string
	// User identifies the caller towards the upstream.
	User string
}

// Gateway relays requests to Dify endpoints.
type Gateway struct {
	client *http.Client
	log    *zap.Logger
}

// NewGateway constructs a Gateway. timeout bounds connection setup and
// the wait for upstream response headers; it deliberately does not cap
// the total stream duration, so long SSE sessions are not cut off.
func NewGateway(timeout time.Duration, log *zap.Logger) *Gateway {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: timeout,
		}).DialContext,
		ResponseHeaderTimeout: timeout,
	}
	return &Gateway{
		client: &http.Client{Transport: transport},
		log:    log,
	}
}

// UploadDocument forwards a file to {target}/files/upload as a
// multipart upload and returns the upstream JSON response verbatim.
// The caller's declared media type is carried on the file part; the
// upstream validates uploads by type.
func (g *Gateway) UploadDocument(ctx context.Context, target *service.Target, file io.Reader, filename, contentType, user string) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := createFilePart(writer, filename, contentType)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}
	if err := writer.WriteField("user", user); err != nil {
		return nil, fmt.Errorf("write user field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	url := strings.TrimRight(target.APIURL, "/") + "/files/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+target.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Detail: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Detail: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Detail: string(respBody)}
	}

	g.log.Info("document relayed",
		zap.String("filename", filename),
		zap.String("user", user),
	)
	return respBody, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// createFilePart adds the file part with the declared media type.
// multipart.Writer.CreateFormFile would stamp every part as
// application/octet-stream.
func createFilePart(w *multipart.Writer, filename, contentType string) (io.Writer, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	return w.CreatePart(h)
}

// chatPayload is the upstream chat-messages request body.
type chatPayload struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	User           string         `json:"user"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// StreamChat opens a streaming chat request against the target and
// copies the SSE response to w line by line as chunks arrive. It never
// buffers the whole upstream response. A single attempt is made; on
// failure the caller decides whether to retry.
func (g *Gateway) StreamChat(ctx context.Context, target *service.Target, chat ChatRequest, w io.Writer) error {
	payload := chatPayload{
		Inputs:       map[string]any{},
		Query:        chat.Query,
		ResponseMode: "streaming",
		User:         chat.User,
	}
	if chat.ConversationID != "" {
		if _, err := uuid.Parse(chat.ConversationID); err == nil {
			payload.ConversationID = chat.ConversationID
		} else {
			g.log.Debug("dropping malformed conversation id",
				zap.String("conversation_id", chat.ConversationID),
			)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal chat payload: %w", err)
	}

	url := strings.TrimRight(target.APIURL, "/") + "/chat-messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+target.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return &UpstreamError{Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UpstreamError{Status: resp.StatusCode, Detail: string(detail)}
	}

	return g.forward(resp.Body, w)
}

// forward copies the upstream SSE body to w preserving event framing:
// data lines are re-terminated with the blank-line delimiter, blank
// lines and other header lines pass through. Each write is flushed so
// the caller sees chunks before the upstream closes.
func (g *Gateway) forward(upstream io.Reader, w io.Writer) error {
	flusher, _ := w.(http.Flusher)

	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if _, err := io.WriteString(w, "\n"); err != nil {
				return fmt.Errorf("write to client: %w", err)
			}
		case strings.HasPrefix(line, dataPrefix):
			g.observeEvent(strings.TrimPrefix(line, dataPrefix))
			if _, err := io.WriteString(w, line+"\n\n"); err != nil {
				return fmt.Errorf("write to client: %w", err)
			}
		default:
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return fmt.Errorf("write to client: %w", err)
			}
		}

		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := scanner.Err(); err != nil {
		return &UpstreamError{Detail: err.Error()}
	}
	return nil
}

// observeEvent parses an event payload for debug logging only. Parse
// failures are ignored; the original bytes are always forwarded.
func (g *Gateway) observeEvent(payload string) {
	if !g.log.Core().Enabled(zap.DebugLevel) {
		return
	}
	var event struct {
		Event          string `json:"event"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return
	}
	g.log.Debug("relayed event",
		zap.String("event", event.Event),
		zap.String("conversation_id", event.ConversationID),
	)
}
