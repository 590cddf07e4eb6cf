// Package sanity talks to the Sanity HTTP API: GROQ queries, mutations and image asset uploads.
package sanity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Techyishu/writerly/cms"
	"github.com/Techyishu/writerly/models"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config - Sanity project settings
type Config struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	Token      string
	UseCDN     bool
	Timeout    time.Duration
	// BaseURL overrides https://<project>.api.sanity.io, used by tests
	BaseURL string
}

// Client - Sanity implementation of cms.Client and cms.AssetUploader
type Client struct {
	cfg        Config
	apiURL     string
	queryURL   string
	httpClient *http.Client
}

// New - creates client. Outgoing requests are traced
func New(cfg Config) (*Client, error) {
	if cfg.ProjectID == "" || cfg.Dataset == "" {
		return nil, fmt.Errorf("sanity project ID and dataset are required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-10-24"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	apiURL := fmt.Sprintf("https://%s.api.sanity.io", cfg.ProjectID)
	queryURL := apiURL
	if cfg.UseCDN {
		queryURL = fmt.Sprintf("https://%s.apicdn.sanity.io", cfg.ProjectID)
	}
	if cfg.BaseURL != "" {
		apiURL = strings.TrimSuffix(cfg.BaseURL, "/")
		queryURL = apiURL
	}

	return &Client{
		cfg:      cfg,
		apiURL:   apiURL + "/v" + cfg.APIVersion,
		queryURL: queryURL + "/v" + cfg.APIVersion,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// mutation request and response bodies
type mutateRequest struct {
	Mutations []map[string]interface{} `json:"mutations"`
}

type mutateResponse struct {
	TransactionID string `json:"transactionId"`
	Results       []struct {
		ID        string       `json:"id"`
		Operation string       `json:"operation"`
		Document  cms.Document `json:"document"`
	} `json:"results"`
}

type apiError struct {
	Error struct {
		Description string `json:"description"`
		Type        string `json:"type"`
	} `json:"error"`
	Message string `json:"message"`
}

// Fetch - runs GROQ query built from q
func (c *Client) Fetch(ctx context.Context, q *cms.Query) ([]cms.Document, error) {
	groq, params, err := buildGROQ(q)
	if err != nil {
		return nil, err
	}
	params.Set("query", groq)

	var response struct {
		Result []cms.Document `json:"result"`
	}
	endpoint := fmt.Sprintf("%s/data/query/%s?%s", c.queryURL, url.PathEscape(c.cfg.Dataset), params.Encode())
	if err = c.do(ctx, http.MethodGet, endpoint, "", nil, &response); err != nil {
		return nil, err
	}
	if response.Result == nil {
		return []cms.Document{}, nil
	}
	return response.Result, nil
}

// GetDocument - fetches document by ID through the doc endpoint
func (c *Client) GetDocument(ctx context.Context, id string) (cms.Document, error) {
	var response struct {
		Documents []cms.Document `json:"documents"`
	}
	endpoint := fmt.Sprintf("%s/data/doc/%s/%s", c.apiURL, url.PathEscape(c.cfg.Dataset), url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, endpoint, "", nil, &response); err != nil {
		return nil, err
	}
	if len(response.Documents) == 0 {
		return nil, cms.ErrNotFound
	}
	return response.Documents[0], nil
}

// Create - create mutation
func (c *Client) Create(ctx context.Context, doc cms.Document) (cms.Document, error) {
	created := doc.Clone()
	if created.ID() == "" {
		created["_id"] = uuid.New().String()
	}
	return c.mutate(ctx, []map[string]interface{}{{"create": created}})
}

// Patch - one patch mutation with plain operations plus one insert per appended field,
// all in one transaction
func (c *Client) Patch(ctx context.Context, id string, p *cms.Patch) (cms.Document, error) {
	patch := map[string]interface{}{"id": id}
	if len(p.SetsIfMissing) > 0 {
		patch["setIfMissing"] = p.SetsIfMissing
	}
	if len(p.Sets) > 0 {
		patch["set"] = p.Sets
	}
	if len(p.Unsets) > 0 {
		patch["unset"] = p.Unsets
	}
	if len(p.Incs) > 0 {
		patch["inc"] = p.Incs
	}
	mutations := []map[string]interface{}{{"patch": patch}}
	for field, items := range p.Appends {
		mutations = append(mutations, map[string]interface{}{
			"patch": map[string]interface{}{
				"id": id,
				"insert": map[string]interface{}{
					"after": field + "[-1]",
					"items": items,
				},
			},
		})
	}
	return c.mutate(ctx, mutations)
}

// Delete - delete mutation. Sanity answers 409 if the document is referenced
func (c *Client) Delete(ctx context.Context, id string) error {
	response, err := c.mutateRaw(ctx, []map[string]interface{}{{"delete": map[string]string{"id": id}}})
	if err != nil {
		return err
	}
	if len(response.Results) == 0 {
		return cms.ErrNotFound
	}
	return nil
}

// UploadImage - uploads image asset and returns its ID and CDN URL
func (c *Client) UploadImage(ctx context.Context, filename, contentType string, body io.Reader) (*models.Asset, error) {
	endpoint := fmt.Sprintf("%s/assets/images/%s?filename=%s", c.apiURL, url.PathEscape(c.cfg.Dataset),
		url.QueryEscape(filename))
	var response struct {
		Document struct {
			ID  string `json:"_id"`
			URL string `json:"url"`
		} `json:"document"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, contentType, body, &response); err != nil {
		return nil, err
	}
	return &models.Asset{AssetID: response.Document.ID, URL: response.Document.URL}, nil
}

func (c *Client) mutate(ctx context.Context, mutations []map[string]interface{}) (cms.Document, error) {
	response, err := c.mutateRaw(ctx, mutations)
	if err != nil {
		return nil, err
	}
	if len(response.Results) == 0 {
		return nil, cms.ErrNotFound
	}
	// last result carries the final state of the document
	return response.Results[len(response.Results)-1].Document, nil
}

func (c *Client) mutateRaw(ctx context.Context, mutations []map[string]interface{}) (*mutateResponse, error) {
	encoded, err := json.Marshal(mutateRequest{Mutations: mutations})
	if err != nil {
		return nil, fmt.Errorf("encode mutations: %w", err)
	}
	endpoint := fmt.Sprintf("%s/data/mutate/%s?returnDocuments=true&visibility=sync", c.apiURL,
		url.PathEscape(c.cfg.Dataset))

	var response mutateResponse
	if err = c.do(ctx, http.MethodPost, endpoint, "application/json", bytes.NewReader(encoded), &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &cms.Error{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return toError(resp.StatusCode, payload)
	}
	if err = json.Unmarshal(payload, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// toError - maps Sanity error responses onto cms errors
func toError(status int, payload []byte) error {
	var parsed apiError
	message := strings.TrimSpace(string(payload))
	if err := json.Unmarshal(payload, &parsed); err == nil {
		if parsed.Error.Description != "" {
			message = parsed.Error.Description
		} else if parsed.Message != "" {
			message = parsed.Message
		}
	}

	var wrapped error
	lower := strings.ToLower(message)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		wrapped = cms.ErrForbidden
	case status == http.StatusNotFound || strings.Contains(lower, "not found"):
		wrapped = cms.ErrNotFound
	case strings.Contains(lower, "reference"):
		wrapped = cms.ErrReferenced
	case status == http.StatusConflict:
		wrapped = cms.ErrConflict
	}
	return &cms.Error{StatusCode: status, Message: message, Err: wrapped}
}
