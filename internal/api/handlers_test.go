package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"

	"hwgrader/internal/extract"
	"hwgrader/internal/service/ai"
	"hwgrader/internal/service/assistant"
	"hwgrader/internal/session"
	"hwgrader/internal/worker"
)

const (
	questionSheet = "Q1. Define osmosis.\nQ2. Name the powerhouse of the cell."
	answerSheet   = "Osmosis is water moving across a membrane.\nThe mitochondria is the powerhouse."
)

func TestHandlersEvaluateAndAskFlow(t *testing.T) {
	chat := &mockChatModel{replies: []string{
		"Score: 8/10\nFeedback: Clear and correct.",
		"Because water follows the solute gradient.",
	}}
	router, _ := newTestServer(t, chat, &mockWorker{})

	evalResp := doMultipart(t, router, "/api/evaluations", map[string]upload{
		"question_file": {name: "questions.txt", contentType: "text/plain", data: questionSheet},
		"student_file":  {name: "answers.txt", contentType: "text/plain", data: answerSheet},
	})
	assertStatus(t, evalResp, http.StatusCreated)
	var evalBody struct {
		SessionID    string `json:"session_id"`
		Score        int    `json:"score"`
		MaxScore     int    `json:"max_score"`
		Feedback     string `json:"feedback"`
		Outcome      string `json:"outcome"`
		QuestionText string `json:"question_text"`
		StudentText  string `json:"student_text"`
	}
	decodeJSON(t, evalResp.Body.Bytes(), &evalBody)
	if evalBody.SessionID == "" {
		t.Fatalf("expected session id")
	}
	if evalBody.Score != 8 || evalBody.MaxScore != 10 || evalBody.Feedback != "Clear and correct." {
		t.Fatalf("unexpected evaluation %+v", evalBody)
	}
	if evalBody.Outcome != "parsed" || evalBody.QuestionText != questionSheet || evalBody.StudentText != answerSheet {
		t.Fatalf("unexpected evaluation texts %+v", evalBody)
	}

	getResp := doJSONRequest(t, router, http.MethodGet, "/api/evaluations/"+evalBody.SessionID, nil, nil)
	assertStatus(t, getResp, http.StatusOK)
	var stored struct {
		ID         string `json:"session_id"`
		Evaluation struct {
			Score int `json:"score"`
		} `json:"evaluation"`
	}
	decodeJSON(t, getResp.Body.Bytes(), &stored)
	if stored.ID != evalBody.SessionID || stored.Evaluation.Score != 8 {
		t.Fatalf("unexpected stored session %+v", stored)
	}

	askResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/evaluations/%s/ask", evalBody.SessionID),
		map[string]string{"question": "Why does osmosis happen?"}, nil)
	assertStatus(t, askResp, http.StatusOK)
	var askBody struct {
		Reply   string `json:"reply"`
		Outcome string `json:"outcome"`
	}
	decodeJSON(t, askResp.Body.Bytes(), &askBody)
	if askBody.Reply != "Because water follows the solute gradient." {
		t.Fatalf("unexpected reply %q", askBody.Reply)
	}
	if chat.calls != 2 {
		t.Fatalf("expected two model calls, got %d", chat.calls)
	}
	if !strings.Contains(chat.last[1].Content, "Question: Why does osmosis happen?") {
		t.Fatalf("question missing from chat prompt: %q", chat.last[1].Content)
	}
}

func TestEvaluateRequiresBothFiles(t *testing.T) {
	chat := &mockChatModel{}
	router, _ := newTestServer(t, chat, &mockWorker{})

	resp := doMultipart(t, router, "/api/evaluations", map[string]upload{
		"question_file": {name: "questions.txt", contentType: "text/plain", data: questionSheet},
	})
	assertStatus(t, resp, http.StatusBadRequest)
	var body struct {
		Error string `json:"error"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Error != assistant.ErrMissingDocuments.Error() {
		t.Fatalf("unexpected error %q", body.Error)
	}
	if chat.calls != 0 {
		t.Fatalf("model should not be called")
	}
}

func TestEvaluateShortAnswerReturnsInsufficientContent(t *testing.T) {
	chat := &mockChatModel{}
	router, _ := newTestServer(t, chat, &mockWorker{})

	resp := doMultipart(t, router, "/api/evaluations", map[string]upload{
		"question_file": {name: "questions.txt", contentType: "text/plain", data: questionSheet},
		"student_file":  {name: "answers.txt", contentType: "text/plain", data: "ok"},
	})
	assertStatus(t, resp, http.StatusCreated)
	var body struct {
		Score    int    `json:"score"`
		Feedback string `json:"feedback"`
		Outcome  string `json:"outcome"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Score != 0 || body.Feedback != ai.MsgInsufficientContent || body.Outcome != "insufficient_content" {
		t.Fatalf("unexpected body %+v", body)
	}
	if chat.calls != 0 {
		t.Fatalf("model should not be called")
	}
}

func TestEvaluateRejectsInvalidUTF8(t *testing.T) {
	router, _ := newTestServer(t, &mockChatModel{}, &mockWorker{})
	resp := doMultipart(t, router, "/api/evaluations", map[string]upload{
		"question_file": {name: "questions.txt", contentType: "text/plain", data: questionSheet},
		"student_file":  {name: "answers.txt", contentType: "text/plain", data: "\xff\xfe broken"},
	})
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestEvaluateRejectsUnsupportedMedia(t *testing.T) {
	router, _ := newTestServer(t, &mockChatModel{}, &mockWorker{})
	resp := doMultipart(t, router, "/api/evaluations", map[string]upload{
		"question_file": {name: "questions.txt", contentType: "text/plain", data: questionSheet},
		"student_file":  {name: "answers.zip", contentType: "application/zip", data: "PK\x03\x04zip"},
	})
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestEvaluateTooLarge(t *testing.T) {
	router, _ := newTestServer(t, &mockChatModel{}, &mockWorker{}, 64)
	resp := doMultipart(t, router, "/api/evaluations", map[string]upload{
		"question_file": {name: "questions.txt", contentType: "text/plain", data: strings.Repeat("q", 200)},
		"student_file":  {name: "answers.txt", contentType: "text/plain", data: answerSheet},
	})
	assertStatus(t, resp, http.StatusRequestEntityTooLarge)
}

func TestEvaluateBusy(t *testing.T) {
	router, _ := newTestServer(t, &mockChatModel{}, &mockWorker{err: worker.ErrDispatcherBusy})
	resp := doMultipart(t, router, "/api/evaluations", map[string]upload{
		"question_file": {name: "questions.txt", contentType: "text/plain", data: questionSheet},
		"student_file":  {name: "answers.txt", contentType: "text/plain", data: answerSheet},
	})
	assertStatus(t, resp, http.StatusTooManyRequests)
}

func TestAskWithoutEvaluation(t *testing.T) {
	router, _ := newTestServer(t, &mockChatModel{}, &mockWorker{})
	resp := doJSONRequest(t, router, http.MethodPost,
		"/api/evaluations/6f1c2a52-3a55-4c1f-9d5b-0c8f4d2a9e11/ask",
		map[string]string{"question": "Why?"}, nil)
	assertStatus(t, resp, http.StatusNotFound)

	getResp := doJSONRequest(t, router, http.MethodGet, "/api/evaluations/unknown", nil, nil)
	assertStatus(t, getResp, http.StatusNotFound)
}

func TestDeleteEvaluation(t *testing.T) {
	chat := &mockChatModel{replies: []string{"Score: 5/10\nFeedback: Fine."}}
	router, _ := newTestServer(t, chat, &mockWorker{})
	sessionID := createEvaluation(t, router)

	delResp := doJSONRequest(t, router, http.MethodDelete, "/api/evaluations/"+sessionID, nil, nil)
	assertStatus(t, delResp, http.StatusNoContent)

	getResp := doJSONRequest(t, router, http.MethodGet, "/api/evaluations/"+sessionID, nil, nil)
	assertStatus(t, getResp, http.StatusNotFound)

	again := doJSONRequest(t, router, http.MethodDelete, "/api/evaluations/"+sessionID, nil, nil)
	assertStatus(t, again, http.StatusNotFound)
}

func TestAskTaskOutlivesRequest(t *testing.T) {
	chat := &mockChatModel{replies: []string{
		"Score: 6/10\nFeedback: Okay.",
		"Late answer.",
	}}
	workers := &mockWorker{}
	router, _ := newTestServer(t, chat, workers)
	sessionID := createEvaluation(t, router)

	workers.park = true
	askResp := doJSONRequest(t, router, http.MethodPost, "/api/evaluations/"+sessionID+"/ask",
		map[string]string{"question": "Why?"}, nil)
	assertStatus(t, askResp, 499)
	workers.park = false

	// reuse the router so gin hands its pooled context to another request
	other := doJSONRequest(t, router, http.MethodGet, "/api/evaluations/other-id", nil, nil)
	assertStatus(t, other, http.StatusNotFound)

	if len(workers.parked) != 1 {
		t.Fatalf("expected one parked task, got %d", len(workers.parked))
	}
	if err := workers.parked[0](context.Background()); err != nil {
		t.Fatalf("parked ask lost its session id: %v", err)
	}
	if chat.calls != 2 {
		t.Fatalf("expected the parked ask to reach the model, got %d calls", chat.calls)
	}
}

func createEvaluation(t *testing.T, router *gin.Engine) string {
	t.Helper()
	resp := doMultipart(t, router, "/api/evaluations", map[string]upload{
		"question_file": {name: "questions.txt", contentType: "text/plain", data: questionSheet},
		"student_file":  {name: "answers.txt", contentType: "text/plain", data: answerSheet},
	})
	assertStatus(t, resp, http.StatusCreated)
	var body struct {
		SessionID string `json:"session_id"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.SessionID == "" {
		t.Fatalf("expected session id")
	}
	return body.SessionID
}

func TestAskValidation(t *testing.T) {
	router, _ := newTestServer(t, &mockChatModel{}, &mockWorker{})

	req := httptest.NewRequest(http.MethodPost, "/api/evaluations/x/ask", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusBadRequest)

	resp := doJSONRequest(t, router, http.MethodPost, "/api/evaluations/x/ask", map[string]string{"question": "  "}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestHandlersWithRealDispatcher(t *testing.T) {
	d := worker.NewDispatcher(worker.Config{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4})
	defer d.Close()
	chat := &mockChatModel{replies: []string{"Score: 5/10\nFeedback: Half right."}}
	router, _ := newTestServer(t, chat, d)

	resp := doMultipart(t, router, "/api/evaluations", map[string]upload{
		"question_file": {name: "questions.txt", contentType: "text/plain", data: questionSheet},
		"student_file":  {name: "answers.txt", contentType: "text/plain", data: answerSheet},
	})
	assertStatus(t, resp, http.StatusCreated)
}

func TestIndexAndHealth(t *testing.T) {
	router, _ := newTestServer(t, &mockChatModel{}, &mockWorker{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assertStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "question_file") || !strings.Contains(rec.Body.String(), "student_file") {
		t.Fatalf("index page missing upload fields")
	}

	health := doJSONRequest(t, router, http.MethodGet, "/healthz", nil, nil)
	assertStatus(t, health, http.StatusOK)
}

func newTestServer(t *testing.T, chat *mockChatModel, workers Dispatcher, maxUpload ...int64) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	asst, err := assistant.NewService(assistant.Deps{
		Extractor: extract.New(extract.Options{}),
		Grader:    ai.NewGrader(chat, ai.GraderOptions{}),
		Tutor:     ai.NewTutor(chat, 0, nil),
		Sessions:  session.NewMemoryStore(),
	})
	if err != nil {
		t.Fatalf("new assistant: %v", err)
	}
	opts := Options{}
	if len(maxUpload) > 0 {
		opts.MaxUploadBytes = maxUpload[0]
	}
	handler := NewHandler(asst, workers, opts)

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, handler
}

type upload struct {
	name        string
	contentType string
	data        string
}

func doMultipart(t *testing.T, router *gin.Engine, path string, files map[string]upload) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.name))
		header.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write([]byte(f.data)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

// mockWorker runs tasks inline, or fails every submission with err. With park
// set it keeps the task for later and reports the request as cancelled.
type mockWorker struct {
	err    error
	park   bool
	parked []worker.Task
}

func (m *mockWorker) Submit(ctx context.Context, _ string, task worker.Task) error {
	if m.err != nil {
		return m.err
	}
	if m.park {
		m.parked = append(m.parked, task)
		return context.Canceled
	}
	return task(ctx)
}

// mockChatModel replays canned replies in order.
type mockChatModel struct {
	replies []string
	calls   int
	last    []*schema.Message
}

func (m *mockChatModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.last = msgs
	idx := m.calls
	m.calls++
	if idx >= len(m.replies) {
		return nil, fmt.Errorf("unexpected model call %d", idx+1)
	}
	return schema.AssistantMessage(m.replies[idx], nil), nil
}

func (m *mockChatModel) Stream(ctx context.Context, msgs []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}
