package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/late7/ai-doc-reader/internal/analyze"
	"github.com/late7/ai-doc-reader/internal/docs"
	"github.com/late7/ai-doc-reader/internal/model"
	"github.com/late7/ai-doc-reader/internal/prompt"
	"github.com/late7/ai-doc-reader/internal/registry"
	"github.com/late7/ai-doc-reader/internal/store"
	"github.com/late7/ai-doc-reader/pkg/anthropic"
	"github.com/late7/ai-doc-reader/pkg/workspace"
)

// stubWorkspace plays back one canned chat response.
type stubWorkspace struct {
	workspace.Client

	chatResp *workspace.ChatResponse
	chatErr  error
}

func (s *stubWorkspace) Chat(context.Context, string, string) (*workspace.ChatResponse, error) {
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	return s.chatResp, nil
}

func (s *stubWorkspace) UploadDocument(_ context.Context, filename string, _ []byte) (*workspace.DocumentRecord, error) {
	return &workspace.DocumentRecord{
		ID:       "ws-doc-1",
		Name:     filename + "-abc.json",
		Title:    filename,
		Location: "custom-documents/" + filename + "-abc.json",
	}, nil
}

func (s *stubWorkspace) RemoveDocuments(context.Context, []string) error { return nil }

func (s *stubWorkspace) UpdateEmbeddings(context.Context, string, []string, []string) error {
	return nil
}

type stubLLM struct {
	resp *anthropic.MessageResponse
}

func (s *stubLLM) CreateMessage(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return s.resp, nil
}

type testEnv struct {
	srv   *httptest.Server
	ws    *stubWorkspace
	reg   *registry.Registry
	token string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	reg := registry.New(st)
	ws := &stubWorkspace{}

	srv := &Server{
		Registry: reg,
		Runner: &analyze.Runner{
			Store:     st,
			Registry:  reg,
			Workspace: ws,
			LLM:       &stubLLM{},
			Generator: prompt.Generator{Year: 2025},
			Model:     "claude-sonnet-4-5-20250929",
		},
		Docs:           &docs.Manager{Store: st, Workspace: ws, Dir: t.TempDir()},
		Sessions:       NewSessionStore(time.Hour),
		Password:       "hunter2",
		DefaultSlug:    "acme",
		AllowedOrigins: []string{"*"},
	}

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testEnv{srv: ts, ws: ws, reg: reg, token: srv.Sessions.Create()}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)

	resp, err := http.Post(e.srv.URL+"/api/login", "application/json", bytes.NewReader([]byte(`{"password":"wrong"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Post(e.srv.URL+"/api/login", "application/json", bytes.NewReader([]byte(`{"password":"hunter2"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	decodeBody(t, resp, &out)
	assert.NotEmpty(t, out["token"])
}

func TestRequireSession(t *testing.T) {
	e := newTestEnv(t)

	// No token.
	resp, err := http.Get(e.srv.URL + "/api/figures/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Health stays open.
	resp, err = http.Get(e.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFigureEndpoints(t *testing.T) {
	e := newTestEnv(t)

	resp := e.request(t, http.MethodPost, "/api/figures/", map[string]string{
		"name":        "Operating Profit",
		"description": "EBIT from the income statement",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var snap store.FigureSnapshot
	decodeBody(t, resp, &snap)
	require.Len(t, snap.Figures, 1)
	assert.Equal(t, "operating_profit", snap.Figures[0].ID)

	// Duplicate derived id is the caller's fault.
	resp = e.request(t, http.MethodPost, "/api/figures/", map[string]string{
		"name":        "operating profit",
		"description": "same id",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.request(t, http.MethodPatch, "/api/figures/operating_profit", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &snap)
	assert.False(t, snap.Figures[0].Enabled)

	resp = e.request(t, http.MethodPatch, "/api/figures/missing", map[string]any{"enabled": false})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.request(t, http.MethodDelete, "/api/figures/operating_profit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &snap)
	assert.Empty(t, snap.Figures)
}

func TestReplaceFigures_StaleRevisionIsConflict(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.reg.CreateFigure(context.Background(), "Revenue", "desc")
	require.NoError(t, err)
	_, err = e.reg.CreateFigure(context.Background(), "EBITDA", "desc")
	require.NoError(t, err)

	resp := e.request(t, http.MethodPut, "/api/figures/", map[string]any{
		"revision": 1,
		"figures":  []model.Figure{{ID: "x", Name: "X"}},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReorderFigure(t *testing.T) {
	e := newTestEnv(t)

	for _, name := range []string{"Revenue", "EBITDA", "Net Income"} {
		_, err := e.reg.CreateFigure(context.Background(), name, "desc")
		require.NoError(t, err)
	}

	resp := e.request(t, http.MethodPost, "/api/figures/net_income/reorder", map[string]int{"position": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap store.FigureSnapshot
	decodeBody(t, resp, &snap)
	assert.Equal(t, "net_income", snap.Figures[0].ID)
	assert.Equal(t, 1, snap.Figures[0].Order)
}

func TestAnalyze_Workspace(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.reg.CreateFigure(context.Background(), "Revenue", "Net sales")
	require.NoError(t, err)
	e.ws.chatResp = &workspace.ChatResponse{
		TextResponse: `{"company_name":"Acme Oy","currency":"EUR","financial_data":{"revenue":{"value":1500000}}}`,
	}

	resp := e.request(t, http.MethodPost, "/api/analyze", map[string]string{"backend": "workspace", "mode": "single-period"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var run model.Run
	decodeBody(t, resp, &run)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, "acme", run.Workspace)
	assert.Equal(t, model.KindSinglePeriod, run.ResultKind)
}

func TestAnalyze_NoFiguresIsBadRequest(t *testing.T) {
	e := newTestEnv(t)

	resp := e.request(t, http.MethodPost, "/api/analyze", map[string]string{"backend": "workspace"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyze_UnknownBackend(t *testing.T) {
	e := newTestEnv(t)

	resp := e.request(t, http.MethodPost, "/api/analyze", map[string]string{"backend": "carrier-pigeon"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyze_TransportFailureIsBadGateway(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.reg.CreateFigure(context.Background(), "Revenue", "Net sales")
	require.NoError(t, err)
	e.ws.chatErr = fmt.Errorf("workspace chat returned 500")

	resp := e.request(t, http.MethodPost, "/api/analyze", map[string]string{"backend": "workspace"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestRunExport_JSON(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.reg.CreateFigure(context.Background(), "Revenue", "Net sales")
	require.NoError(t, err)
	e.ws.chatResp = &workspace.ChatResponse{
		TextResponse: `{"company_name":"Acme Oy","currency":"EUR","financial_data":{"revenue":{"value":1500000}}}`,
	}

	resp := e.request(t, http.MethodPost, "/api/analyze", map[string]string{"backend": "workspace"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var run model.Run
	decodeBody(t, resp, &run)

	resp = e.request(t, http.MethodGet, "/api/runs/"+run.ID+"/export?format=json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Acme_Oy.json")

	var out map[string]any
	decodeBody(t, resp, &out)
	assert.Equal(t, "Acme Oy", out["company_name"])
	// The payload is the LLM shape, not the persistence envelope.
	assert.NotContains(t, out, "kind")
}

func TestQuestionRun(t *testing.T) {
	e := newTestEnv(t)

	snap, err := e.reg.CreateQuestion(context.Background(), "Ownership", "Who owns the company?")
	require.NoError(t, err)
	e.ws.chatResp = &workspace.ChatResponse{
		TextResponse: "Family owned",
		Sources:      []workspace.Source{{Document: "annual-report.pdf", Text: "owned by the Smith family"}},
	}

	resp := e.request(t, http.MethodPost, "/api/questions/"+snap.Questions[0].ID+"/run", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var answer model.QuestionAnswer
	decodeBody(t, resp, &answer)
	assert.Equal(t, "Family owned", answer.Answer)
	require.Len(t, answer.Sources, 1)

	resp = e.request(t, http.MethodPost, "/api/questions/nope/run", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func uploadRequest(t *testing.T, url, token, filename string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() }) //nolint:errcheck
	return resp
}

func TestDocumentEndpoints(t *testing.T) {
	e := newTestEnv(t)

	resp := uploadRequest(t, e.srv.URL+"/api/documents/", e.token, "annual-report.pdf", []byte("%PDF-1.4"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var doc model.Document
	decodeBody(t, resp, &doc)
	assert.Equal(t, "annual-report.pdf", doc.OriginalName)
	assert.Equal(t, "ws-doc-1", doc.DocID)

	resp = e.request(t, http.MethodGet, "/api/documents/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Documents []model.Document `json:"documents"`
	}
	decodeBody(t, resp, &list)
	require.Len(t, list.Documents, 1)

	resp = e.request(t, http.MethodGet, "/api/documents/"+doc.ID+"/download", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "annual-report.pdf")

	resp = e.request(t, http.MethodDelete, "/api/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.request(t, http.MethodGet, "/api/documents/"+doc.ID+"/download", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
