package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/suggest/internal/models"
	"github.com/hyperjump/suggest/internal/storage"
)

// apiClient calls a running suggest server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Suggest calls GET /suggest.
func (c *apiClient) Suggest(ctx context.Context, query string, k int) (*models.SuggestResponse, error) {
	params := url.Values{"query": {query}}
	if k > 0 {
		params.Set("k", strconv.Itoa(k))
	}
	var out models.SuggestResponse
	if err := c.do(ctx, http.MethodGet, "/suggest?"+params.Encode(), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create calls POST /scenarios and returns the new ID.
func (c *apiClient) Create(ctx context.Context, input *models.ScenarioInput) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/scenarios", input, http.StatusCreated, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// Get calls GET /scenarios/{id}. A 404 is reported as storage.ErrNotFound.
func (c *apiClient) Get(ctx context.Context, id int64) (*models.Scenario, error) {
	var out models.Scenario
	err := c.do(ctx, http.MethodGet, "/scenarios/"+strconv.FormatInt(id, 10), nil, http.StatusOK, &out)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %d", storage.ErrNotFound, id)
		}
		return nil, err
	}
	return &out, nil
}

// Status calls GET /status.
func (c *apiClient) Status(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/status", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// statusError is a response with an unexpected HTTP status.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

func (c *apiClient) do(ctx context.Context, method, path string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
