package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
)

// Store talks to the layout persistence service. Writes retry with
// backoff; a write that still fails is the caller's problem to swallow
// (the in-memory tree stays authoritative either way).
type Store struct {
	http    *retryablehttp.Client
	baseURL string
}

// NewStore creates a persistence client for the given base URL.
func NewStore(baseURL string, timeout time.Duration) *Store {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = nil
	return &Store{http: c, baseURL: baseURL}
}

// LayoutTree fetches a project's persisted tree document.
func (s *Store) LayoutTree(ctx context.Context, projectID string) ([]byte, error) {
	return s.get(ctx, fmt.Sprintf("%s/projects/%s/layout-tree", s.baseURL, projectID))
}

// SaveLayoutTree idempotently replaces a project's tree document.
func (s *Store) SaveLayoutTree(ctx context.Context, projectID string, doc []byte) error {
	return s.put(ctx, fmt.Sprintf("%s/projects/%s/layout-tree", s.baseURL, projectID), doc)
}

// LayoutTemplate fetches a project's template snapshot.
func (s *Store) LayoutTemplate(ctx context.Context, projectID string) ([]byte, error) {
	return s.get(ctx, fmt.Sprintf("%s/projects/%s/layout-template", s.baseURL, projectID))
}

// SaveLayoutTemplate idempotently replaces a project's template snapshot.
func (s *Store) SaveLayoutTemplate(ctx context.Context, projectID string, doc []byte) error {
	return s.put(ctx, fmt.Sprintf("%s/projects/%s/layout-template", s.baseURL, projectID), doc)
}

// ActiveDirectory fetches a project's active working directory pointer.
func (s *Store) ActiveDirectory(ctx context.Context, projectID string) (string, error) {
	data, err := s.get(ctx, fmt.Sprintf("%s/projects/%s/active-directory", s.baseURL, projectID))
	if err != nil {
		return "", err
	}
	var body struct {
		Path string `json:"path"`
	}
	if err := sonic.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("parse active directory: %w", err)
	}
	return body.Path, nil
}

func (s *Store) get(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("persistence service: GET %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (s *Store) put(ctx context.Context, url string, doc []byte) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(doc))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("persistence service: PUT %s: %s", url, resp.Status)
	}
	return nil
}
