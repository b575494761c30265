package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const errorBodyReadLimit int64 = 1024

var errSupabaseConfig = errors.New("supabase url and key are required")

// StatusError is a non-2xx answer from the storage API.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// SupabaseStore talks to the Supabase Storage REST API.
type SupabaseStore struct {
	httpClient *http.Client
	baseURL    string
	key        string
}

// SupabaseOption configures optional SupabaseStore behavior.
type SupabaseOption func(*SupabaseStore)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) SupabaseOption {
	return func(s *SupabaseStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewSupabaseStore builds a store for the project at projectURL.
func NewSupabaseStore(projectURL, key string, opts ...SupabaseOption) (*SupabaseStore, error) {
	projectURL = strings.TrimRight(strings.TrimSpace(projectURL), "/")
	key = strings.TrimSpace(key)
	if projectURL == "" || key == "" {
		return nil, errSupabaseConfig
	}

	s := &SupabaseStore{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    projectURL + "/storage/v1",
		key:        key,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// EnsureBucket lists buckets and creates a public one when missing.
func (s *SupabaseStore) EnsureBucket(ctx context.Context, bucket string) error {
	resp, err := s.do(ctx, http.MethodGet, s.baseURL+"/bucket", nil, "")
	if err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkStatus("list buckets", resp); err != nil {
		return err
	}

	var buckets []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&buckets); err != nil {
		return fmt.Errorf("decode bucket list: %w", err)
	}
	for _, b := range buckets {
		if b.Name == bucket {
			return nil
		}
	}

	payload, err := json.Marshal(map[string]any{"id": bucket, "name": bucket, "public": true})
	if err != nil {
		return fmt.Errorf("marshal create bucket request: %w", err)
	}
	created, err := s.do(ctx, http.MethodPost, s.baseURL+"/bucket", bytes.NewReader(payload), "application/json")
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	defer func() { _ = created.Body.Close() }()

	// a concurrent creator may have won the race
	if created.StatusCode == http.StatusConflict {
		return nil
	}
	return checkStatus("create bucket "+bucket, created)
}

// Upload stores data at bucket/path, overwriting an existing object so a
// retried upload is idempotent.
func (s *SupabaseStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	if err := validPath(path); err != nil {
		return err
	}

	req, err := s.newRequest(ctx, http.MethodPost, s.objectURL("", bucket, path), bytes.NewReader(data), contentType)
	if err != nil {
		return err
	}
	req.Header.Set("x-upsert", "true")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return checkStatus("upload "+bucket+"/"+path, resp)
}

// Download fetches the object at bucket/path.
func (s *SupabaseStore) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	if err := validPath(path); err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, http.MethodGet, s.objectURL("authenticated", bucket, path), nil, "")
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", bucket, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return nil, fmt.Errorf("download %s/%s: %w", bucket, path, ErrObjectNotFound)
	}
	if err := checkStatus("download "+bucket+"/"+path, resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, path, err)
	}
	return data, nil
}

// PublicURL returns the unauthenticated URL of an object in a public bucket.
func (s *SupabaseStore) PublicURL(bucket, path string) string {
	return s.objectURL("public", bucket, path)
}

func (s *SupabaseStore) objectURL(scope, bucket, path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	prefix := s.baseURL + "/object/"
	if scope != "" {
		prefix += scope + "/"
	}
	return prefix + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

func (s *SupabaseStore) newRequest(ctx context.Context, method, target string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (s *SupabaseStore) do(ctx context.Context, method, target string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := s.newRequest(ctx, method, target, body, contentType)
	if err != nil {
		return nil, err
	}
	return s.httpClient.Do(req)
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}
