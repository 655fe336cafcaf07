// Package workspace provides a client for the document-workspace (RAG)
// backend: chat round-trips against an embedded document collection plus the
// document upload, listing and removal endpoints.
package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the workspace backend operations used by the dashboard.
type Client interface {
	// Chat sends one message to the workspace's chat endpoint. The
	// workspace's own retrieval decides which document chunks the model sees.
	Chat(ctx context.Context, slug, message string) (*ChatResponse, error)
	// UploadDocument posts raw file bytes for server-side parsing and
	// embedding. The returned record carries the backend-assigned ids.
	UploadDocument(ctx context.Context, filename string, data []byte) (*DocumentRecord, error)
	// ListDocuments returns every parsed document known to the backend.
	ListDocuments(ctx context.Context) ([]DocumentRecord, error)
	// RemoveDocuments deletes parsed documents by their storage locations.
	RemoveDocuments(ctx context.Context, locations []string) error
	// UpdateEmbeddings adds and removes document locations from a
	// workspace's embedding set.
	UpdateEmbeddings(ctx context.Context, slug string, adds, deletes []string) error
}

// ChatResponse is the raw-text contract consumed by the response interpreter.
type ChatResponse struct {
	TextResponse string   `json:"textResponse"`
	Sources      []Source `json:"sources,omitempty"`
}

// Source is a retrieval citation: the document a chunk came from and the
// chunk text.
type Source struct {
	Document string `json:"title"`
	Text     string `json:"text"`
}

// DocumentRecord is the backend's view of one parsed document.
type DocumentRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Location string `json:"location"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the backend base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a workspace backend client. Chat calls can take a while
// on large workspaces, so the default timeout is generous.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Chat(ctx context.Context, slug, message string) (*ChatResponse, error) {
	body, err := json.Marshal(map[string]string{
		"message": message,
		"mode":    "query",
	})
	if err != nil {
		return nil, eris.Wrap(err, "workspace: marshal chat request")
	}

	data, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/workspace/%s/chat", slug), "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var resp ChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, eris.Wrap(err, "workspace: unmarshal chat response")
	}
	return &resp, nil
}

func (c *httpClient) UploadDocument(ctx context.Context, filename string, data []byte) (*DocumentRecord, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, eris.Wrap(err, "workspace: create form file")
	}
	if _, err := fw.Write(data); err != nil {
		return nil, eris.Wrap(err, "workspace: write form file")
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "workspace: close multipart writer")
	}

	respData, err := c.do(ctx, http.MethodPost, "/api/v1/document/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success   bool             `json:"success"`
		Error     string           `json:"error"`
		Documents []DocumentRecord `json:"documents"`
	}
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, eris.Wrap(err, "workspace: unmarshal upload response")
	}
	if len(resp.Documents) == 0 {
		if resp.Error != "" {
			return nil, eris.Errorf("workspace: upload rejected: %s", resp.Error)
		}
		return nil, eris.New("workspace: upload returned no documents")
	}
	return &resp.Documents[0], nil
}

func (c *httpClient) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v1/documents", "", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		LocalFiles struct {
			Items []struct {
				Items []DocumentRecord `json:"items"`
			} `json:"items"`
		} `json:"localFiles"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, eris.Wrap(err, "workspace: unmarshal documents response")
	}

	var docs []DocumentRecord
	for _, folder := range resp.LocalFiles.Items {
		docs = append(docs, folder.Items...)
	}
	return docs, nil
}

func (c *httpClient) RemoveDocuments(ctx context.Context, locations []string) error {
	body, err := json.Marshal(map[string][]string{"names": locations})
	if err != nil {
		return eris.Wrap(err, "workspace: marshal remove request")
	}
	_, err = c.do(ctx, http.MethodDelete, "/api/v1/system/remove-documents", "application/json", bytes.NewReader(body))
	return err
}

func (c *httpClient) UpdateEmbeddings(ctx context.Context, slug string, adds, deletes []string) error {
	body, err := json.Marshal(map[string][]string{
		"adds":    adds,
		"deletes": deletes,
	})
	if err != nil {
		return eris.Wrap(err, "workspace: marshal embeddings request")
	}
	_, err = c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/workspace/%s/update-embeddings", slug), "application/json", bytes.NewReader(body))
	return err
}

// do performs one request. Transport failures and non-2xx responses surface
// immediately; there is no retry policy for these calls.
func (c *httpClient) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, eris.Wrapf(err, "workspace: new request %s", path)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "workspace: %s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "workspace: read response %s", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(data)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, eris.Errorf("workspace: %s %s returned %d: %s", method, path, resp.StatusCode, snippet)
	}

	return data, nil
}
