package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ragui/dify-relay/internal/common"
	"github.com/ragui/dify-relay/internal/middleware"
	"github.com/ragui/dify-relay/internal/models"
	"github.com/ragui/dify-relay/internal/relay"
	"github.com/ragui/dify-relay/internal/service"
)

// fakeTargets implements TargetResolver for testing.
type fakeTargets struct {
	globalTarget *service.Target
	globalErr    error
	appTarget    *service.Target
	appErr       error
	gotAppID     int64
}

func (f *fakeTargets) GlobalTarget(ctx context.Context) (*service.Target, error) {
	return f.globalTarget, f.globalErr
}

func (f *fakeTargets) AppTarget(ctx context.Context, id int64) (*service.Target, error) {
	f.gotAppID = id
	return f.appTarget, f.appErr
}

// fakeRelay implements Relay for testing.
type fakeRelay struct {
	streamOut    string
	streamErr    error
	gotChat      relay.ChatRequest
	gotTarget    *service.Target
	uploadBody     []byte
	uploadErr      error
	gotFilename    string
	gotContentType string
	gotUser        string
	gotFileBytes   []byte
}

func (f *fakeRelay) StreamChat(ctx context.Context, target *service.Target, chat relay.ChatRequest, w io.Writer) error {
	f.gotTarget = target
	f.gotChat = chat
	if f.streamOut != "" {
		_, _ = io.WriteString(w, f.streamOut)
	}
	return f.streamErr
}

func (f *fakeRelay) UploadDocument(ctx context.Context, target *service.Target, file io.Reader, filename, contentType, user string) ([]byte, error) {
	f.gotTarget = target
	f.gotFilename = filename
	f.gotContentType = contentType
	f.gotUser = user
	f.gotFileBytes, _ = io.ReadAll(file)
	return f.uploadBody, f.uploadErr
}

func authedRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	user := &models.User{ID: 1, Username: "alice", Role: models.RoleUser, IsActive: true}
	return req.WithContext(middleware.WithUser(req.Context(), user))
}

func TestChatHandler_Chat(t *testing.T) {
	target := &service.Target{APIURL: "https://dify.example/v1", APIKey: "k"}

	tests := []struct {
		name           string
		body           string
		targets        *fakeTargets
		relay          *fakeRelay
		expectedCode   int
		expectedSubstr string
	}{
		{
			name:           "config missing",
			body:           `{"query":"hi"}`,
			targets:        &fakeTargets{globalErr: common.ErrConfigMissing},
			relay:          &fakeRelay{},
			expectedCode:   http.StatusBadRequest,
			expectedSubstr: "dify configuration missing",
		},
		{
			name:           "invalid JSON",
			body:           `not json`,
			targets:        &fakeTargets{globalTarget: target},
			relay:          &fakeRelay{},
			expectedCode:   http.StatusBadRequest,
			expectedSubstr: "invalid request body",
		},
		{
			name:           "empty query",
			body:           `{"query":""}`,
			targets:        &fakeTargets{globalTarget: target},
			relay:          &fakeRelay{},
			expectedCode:   http.StatusBadRequest,
			expectedSubstr: "Query is required",
		},
		{
			name:           "upstream error before stream",
			body:           `{"query":"hi"}`,
			targets:        &fakeTargets{globalTarget: target},
			relay:          &fakeRelay{streamErr: &relay.UpstreamError{Status: 502, Detail: "bad gateway"}},
			expectedCode:   http.StatusInternalServerError,
			expectedSubstr: "upstream returned status 502",
		},
		{
			name:           "success",
			body:           `{"query":"hi"}`,
			targets:        &fakeTargets{globalTarget: target},
			relay:          &fakeRelay{streamOut: "data: {\"answer\":\"hello\"}\n\n"},
			expectedCode:   http.StatusOK,
			expectedSubstr: `"answer":"hello"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := authedRequest("POST", "/api/v1/chat", tt.body)
			h := &ChatHandler{Targets: tt.targets, Relay: tt.relay, Log: zap.NewNop()}
			h.Chat(rec, req)

			if rec.Code != tt.expectedCode {
				t.Fatalf("expected status %d, got %d", tt.expectedCode, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.expectedSubstr)
			}
		})
	}
}

func TestChatHandler_Chat_SetsStreamHeadersAndUser(t *testing.T) {
	target := &service.Target{APIURL: "https://dify.example/v1", APIKey: "k"}
	fr := &fakeRelay{streamOut: "data: {}\n\n"}

	rec := httptest.NewRecorder()
	req := authedRequest("POST", "/api/v1/chat", `{"query":"hi","conversation_id":"abc"}`)
	h := &ChatHandler{Targets: &fakeTargets{globalTarget: target}, Relay: fr, Log: zap.NewNop()}
	h.Chat(rec, req)

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q; want text/event-stream", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q; want no-cache", got)
	}
	if fr.gotChat.User != "alice" {
		t.Errorf("relay user = %q; want alice", fr.gotChat.User)
	}
	if fr.gotChat.ConversationID != "abc" {
		t.Errorf("relay conversation id = %q; want abc", fr.gotChat.ConversationID)
	}
	if fr.gotTarget != target {
		t.Error("relay did not receive the resolved target")
	}
}

func TestChatHandler_Chat_MidStreamFailureKeepsPartialBody(t *testing.T) {
	target := &service.Target{APIURL: "https://dify.example/v1", APIKey: "k"}
	fr := &fakeRelay{
		streamOut: "data: {\"answer\":\"partial\"}\n\n",
		streamErr: &relay.UpstreamError{Detail: "connection reset"},
	}

	rec := httptest.NewRecorder()
	req := authedRequest("POST", "/api/v1/chat", `{"query":"hi"}`)
	h := &ChatHandler{Targets: &fakeTargets{globalTarget: target}, Relay: fr, Log: zap.NewNop()}
	h.Chat(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d; want 200 once streaming has begun", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "partial") {
		t.Errorf("partial chunk missing from body: %q", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "detail") {
		t.Errorf("error body injected into a started stream: %q", rec.Body.String())
	}
}

func appRequest(id, body string) *http.Request {
	req := authedRequest("POST", "/api/v1/chat/app/"+id, body)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestChatHandler_ChatWithApp(t *testing.T) {
	target := &service.Target{APIURL: "https://app.example/v1", APIKey: "app-k"}

	tests := []struct {
		name         string
		id           string
		targets      *fakeTargets
		expectedCode int
	}{
		{"bad id", "abc", &fakeTargets{appTarget: target}, http.StatusBadRequest},
		{"unknown or inactive app", "9", &fakeTargets{appErr: common.ErrNotFound}, http.StatusNotFound},
		{"active app", "2", &fakeTargets{appTarget: target}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := appRequest(tt.id, `{"query":"hi"}`)
			h := &ChatHandler{Targets: tt.targets, Relay: &fakeRelay{streamOut: "data: {}\n\n"}, Log: zap.NewNop()}
			h.ChatWithApp(rec, req)

			if rec.Code != tt.expectedCode {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func multipartBody(t *testing.T, fieldName, filename, fileType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, filename))
	header.Set("Content-Type", fileType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestChatHandler_UploadDocument(t *testing.T) {
	target := &service.Target{APIURL: "https://dify.example/v1", APIKey: "k"}
	fr := &fakeRelay{uploadBody: []byte(`{"id":"doc-1"}`)}

	body, contentType := multipartBody(t, "file", "notes.txt", "text/plain", "file body")
	req := httptest.NewRequest("POST", "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	user := &models.User{ID: 1, Username: "alice", IsActive: true}
	req = req.WithContext(middleware.WithUser(req.Context(), user))

	rec := httptest.NewRecorder()
	h := &ChatHandler{Targets: &fakeTargets{globalTarget: target}, Relay: fr, Log: zap.NewNop()}
	h.UploadDocument(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"id":"doc-1"}` {
		t.Errorf("body = %q; want upstream response verbatim", rec.Body.String())
	}
	if fr.gotFilename != "notes.txt" {
		t.Errorf("filename = %q; want notes.txt", fr.gotFilename)
	}
	if fr.gotContentType != "text/plain" {
		t.Errorf("content type = %q; want text/plain", fr.gotContentType)
	}
	if fr.gotUser != "alice" {
		t.Errorf("user = %q; want alice", fr.gotUser)
	}
	if string(fr.gotFileBytes) != "file body" {
		t.Errorf("file content = %q; want %q", fr.gotFileBytes, "file body")
	}
}

func TestChatHandler_UploadDocument_MissingFile(t *testing.T) {
	target := &service.Target{APIURL: "https://dify.example/v1", APIKey: "k"}

	body, contentType := multipartBody(t, "attachment", "notes.txt", "text/plain", "x")
	req := httptest.NewRequest("POST", "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(middleware.WithUser(req.Context(), &models.User{ID: 1, Username: "alice"}))

	rec := httptest.NewRecorder()
	h := &ChatHandler{Targets: &fakeTargets{globalTarget: target}, Relay: &fakeRelay{}, Log: zap.NewNop()}
	h.UploadDocument(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "file is required") {
		t.Errorf("body = %q; want file-required detail", rec.Body.String())
	}
}

func TestChatHandler_UploadDocument_ConfigMissing(t *testing.T) {
	body, contentType := multipartBody(t, "file", "notes.txt", "text/plain", "x")
	req := httptest.NewRequest("POST", "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(middleware.WithUser(req.Context(), &models.User{ID: 1, Username: "alice"}))

	rec := httptest.NewRecorder()
	h := &ChatHandler{Targets: &fakeTargets{globalErr: common.ErrConfigMissing}, Relay: &fakeRelay{}, Log: zap.NewNop()}
	h.UploadDocument(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", rec.Code)
	}
}
