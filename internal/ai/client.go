package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/miguelavelar/loomchat-backend/pkg/errors"
)

// Client talks to the external retrieval pipeline. The pipeline owns document
// chunking, embeddings and answer generation; this service only consumes the
// answer text and its token count.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error)
}

// SearchRequest asks the pipeline for an answer grounded in the user's documents.
type SearchRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Query  string    `json:"query"`
}

// SearchResponse carries the generated answer and the provider-reported usage.
type SearchResponse struct {
	Answer           string     `json:"answer"`
	SectionID        *uuid.UUID `json:"section_id,omitempty"`
	PromptTokens     int64      `json:"prompt_tokens"`
	CompletionTokens int64      `json:"completion_tokens"`
}

// UploadRequest submits raw document text for indexing.
type UploadRequest struct {
	UserID   uuid.UUID `json:"user_id"`
	Filename string    `json:"filename"`
	Content  string    `json:"content"`
}

// UploadResponse reports the indexing outcome.
type UploadResponse struct {
	SectionID  uuid.UUID `json:"section_id"`
	TokensUsed int64     `json:"tokens_used"`
}

// ClientParams configures the HTTP client.
type ClientParams struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// HTTPClient overrides the default client in tests.
	HTTPClient *http.Client
}

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient builds an HTTP-backed pipeline client.
func NewClient(params ClientParams) (Client, error) {
	base := strings.TrimRight(strings.TrimSpace(params.BaseURL), "/")
	if base == "" {
		return nil, errors.New("ai base url is required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	client := params.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &httpClient{
		baseURL: base,
		apiKey:  params.APIKey,
		client:  client,
	}, nil
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.post(ctx, "/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error) {
	var resp UploadResponse
	if err := c.post(ctx, "/upload", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieval pipeline unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("retrieval pipeline %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode retrieval pipeline response")
	}
	return nil
}
