package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/config"
	"storefront/internal/model"
)

// SearchBackend runs text and image searches
type SearchBackend interface {
	Search(ctx context.Context, req model.SearchRequest, diversity *model.DiversityOptions) (*model.SearchResponse, error)
	ImageSearch(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error)
}

// Suggester returns autosuggest candidates for a partial query
type Suggester interface {
	Suggestions(ctx context.Context, partial string) ([]string, error)
}

// Transcriber turns captured audio into text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (*model.Transcription, error)
}

// RecommendationBackend serves personalized and trending products
type RecommendationBackend interface {
	Recommendations(ctx context.Context, userID string) (*model.RecommendationResponse, error)
	Trending(ctx context.Context, limit int) ([]model.ProductSearchResult, error)
}

// CatalogBackend resolves product details
type CatalogBackend interface {
	Product(ctx context.Context, id string) (*model.Product, error)
	RelatedProducts(ctx context.Context, id string) ([]model.ProductSearchResult, error)
}

// ProfileBackend reads and writes user profiles
type ProfileBackend interface {
	Profile(ctx context.Context, userID string) (*model.UserProfile, error)
	UpdateProfile(ctx context.Context, profile model.UserProfile) (*model.UserProfile, error)
}

// InteractionBackend receives analytics records
type InteractionBackend interface {
	LogInteraction(ctx context.Context, interaction model.Interaction) error
}

// ChatChunk is one streamed piece of an assistant reply
type ChatChunk struct {
	Delta    string                      `json:"delta"`
	Products []model.ProductSearchResult `json:"products,omitempty"`
}

// StreamCallback is called for each chunk in streaming mode
type StreamCallback func(chunk ChatChunk) error

// ChatBackend holds the chat transcript
type ChatBackend interface {
	ChatHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	ChatStream(ctx context.Context, sessionID, text string, callback StreamCallback) error
}

// Backend is the full remote API surface the session core depends on
type Backend interface {
	SearchBackend
	Suggester
	Transcriber
	RecommendationBackend
	CatalogBackend
	ProfileBackend
	InteractionBackend
	ChatBackend
}

// BackendClient talks JSON over HTTP to the product-discovery API
type BackendClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Backend = (*BackendClient)(nil)

// NewBackendClient creates a client for the configured backend
func NewBackendClient(cfg config.BackendConfig) *BackendClient {
	return &BackendClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// NewBackendClientWithHTTP is used by tests to point at an httptest server
func NewBackendClientWithHTTP(baseURL string, httpClient *http.Client) *BackendClient {
	return &BackendClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type searchPayload struct {
	Query     string                  `json:"query"`
	Filters   model.FilterSet         `json:"filters"`
	Page      int                     `json:"page"`
	PageSize  int                     `json:"page_size"`
	Diversity *model.DiversityOptions `json:"diversity,omitempty"`
}

// Search performs a text search
func (c *BackendClient) Search(ctx context.Context, req model.SearchRequest, diversity *model.DiversityOptions) (*model.SearchResponse, error) {
	payload := searchPayload{
		Query:     req.Query,
		Filters:   req.Filters,
		Page:      req.Page,
		PageSize:  req.PageSize,
		Diversity: diversity,
	}

	var result model.SearchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/search", payload, &result); err != nil {
		return nil, withOp(err, "backend.Search")
	}
	if result.Products == nil {
		result.Products = []model.ProductSearchResult{}
	}
	return &result, nil
}

// imageSearchResponse is the image endpoint's wire shape
type imageSearchResponse struct {
	Products   []model.ProductSearchResult `json:"products"`
	TotalFound int                         `json:"total_found"`
}

// ImageSearch uploads the image with the current filter subset
func (c *BackendClient) ImageSearch(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	if req.Image == nil {
		return nil, apperr.Validation("no image selected").WithOp("backend.ImageSearch")
	}

	filters, err := json.Marshal(req.Filters)
	if err != nil {
		return nil, apperr.Internal("failed to marshal filters", err)
	}

	fields := map[string]string{
		"filters": string(filters),
		"limit":   strconv.Itoa(req.PageSize),
	}
	body, contentType, err := multipartBody("image", req.Image.Filename, req.Image.ContentType, req.Image.Data, fields)
	if err != nil {
		return nil, apperr.Internal("failed to build upload", err)
	}

	var wire imageSearchResponse
	if err := c.do(ctx, http.MethodPost, "/search/image", body, contentType, &wire); err != nil {
		return nil, withOp(err, "backend.ImageSearch")
	}

	products := wire.Products
	if products == nil {
		products = []model.ProductSearchResult{}
	}
	return &model.SearchResponse{Products: products, TotalResults: wire.TotalFound}, nil
}

// Suggestions fetches autosuggest candidates
func (c *BackendClient) Suggestions(ctx context.Context, partial string) ([]string, error) {
	var result model.SuggestionResponse
	path := "/search/suggestions?q=" + url.QueryEscape(partial)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, withOp(err, "backend.Suggestions")
	}
	return result.Suggestions, nil
}

// Transcribe uploads recorded audio
func (c *BackendClient) Transcribe(ctx context.Context, audio []byte, contentType string) (*model.Transcription, error) {
	if contentType == "" {
		contentType = "audio/webm"
	}
	body, formType, err := multipartBody("audio", "recording", contentType, audio, nil)
	if err != nil {
		return nil, apperr.Internal("failed to build upload", err)
	}

	var result model.Transcription
	if err := c.do(ctx, http.MethodPost, "/voice/transcribe", body, formType, &result); err != nil {
		return nil, withOp(err, "backend.Transcribe")
	}
	return &result, nil
}

// Recommendations fetches personalized picks. Empty is a valid answer.
func (c *BackendClient) Recommendations(ctx context.Context, userID string) (*model.RecommendationResponse, error) {
	var result model.RecommendationResponse
	if err := c.doJSON(ctx, http.MethodGet, "/recommendations/"+url.PathEscape(userID), nil, &result); err != nil {
		return nil, withOp(err, "backend.Recommendations")
	}
	if result.Recommendations == nil {
		result.Recommendations = []model.ProductSearchResult{}
	}
	return &result, nil
}

// Trending fetches the popular products list
func (c *BackendClient) Trending(ctx context.Context, limit int) ([]model.ProductSearchResult, error) {
	var result model.TrendingResponse
	path := "/products/trending?limit=" + strconv.Itoa(limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, withOp(err, "backend.Trending")
	}
	if result.Products == nil {
		return []model.ProductSearchResult{}, nil
	}
	return result.Products, nil
}

// Product fetches one product's detail
func (c *BackendClient) Product(ctx context.Context, id string) (*model.Product, error) {
	var result model.Product
	if err := c.doJSON(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, withOp(err, "backend.Product")
	}
	return &result, nil
}

// RelatedProducts fetches products similar to id
func (c *BackendClient) RelatedProducts(ctx context.Context, id string) ([]model.ProductSearchResult, error) {
	var result model.TrendingResponse
	if err := c.doJSON(ctx, http.MethodGet, "/products/"+url.PathEscape(id)+"/related", nil, &result); err != nil {
		return nil, withOp(err, "backend.RelatedProducts")
	}
	return result.Products, nil
}

// Profile reads a user profile
func (c *BackendClient) Profile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var result model.UserProfile
	if err := c.doJSON(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/profile", nil, &result); err != nil {
		return nil, withOp(err, "backend.Profile")
	}
	return &result, nil
}

// UpdateProfile writes a user profile and returns the stored version
func (c *BackendClient) UpdateProfile(ctx context.Context, profile model.UserProfile) (*model.UserProfile, error) {
	var result model.UserProfile
	path := "/users/" + url.PathEscape(profile.UserID) + "/profile"
	if err := c.doJSON(ctx, http.MethodPut, path, profile, &result); err != nil {
		return nil, withOp(err, "backend.UpdateProfile")
	}
	return &result, nil
}

// LogInteraction sends one analytics record
func (c *BackendClient) LogInteraction(ctx context.Context, interaction model.Interaction) error {
	return withOp(c.doJSON(ctx, http.MethodPost, "/interactions", interaction, nil), "backend.LogInteraction")
}

// ChatHistory fetches the backend-held transcript
func (c *BackendClient) ChatHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	var result model.ChatTranscript
	if err := c.doJSON(ctx, http.MethodGet, "/chat/"+url.PathEscape(sessionID)+"/messages", nil, &result); err != nil {
		return nil, withOp(err, "backend.ChatHistory")
	}
	return result.Messages, nil
}

// ChatStream posts a user message and streams the assistant reply
func (c *BackendClient) ChatStream(ctx context.Context, sessionID, text string, callback StreamCallback) error {
	reqBody, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return apperr.Internal("failed to marshal request", err)
	}

	path := "/chat/" + url.PathEscape(sessionID) + "/messages/stream"
	httpReq, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(reqBody), "application/json")
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return transportError("backend.ChatStream", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError("backend.ChatStream", resp.StatusCode, body)
	}

	// SSE format: "data: {...}" lines terminated by "data: [DONE]"
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return transportError("backend.ChatStream", err)
		}

		trimmed := bytes.TrimSpace(line)
		if data, ok := bytes.CutPrefix(trimmed, []byte("data:")); ok {
			data = bytes.TrimSpace(data)
			if bytes.Equal(data, []byte("[DONE]")) {
				return nil
			}

			var chunk ChatChunk
			if jsonErr := json.Unmarshal(data, &chunk); jsonErr != nil {
				// plain-text chunk
				chunk = ChatChunk{Delta: string(data)}
			}
			if cbErr := callback(chunk); cbErr != nil {
				return cbErr
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

func (c *BackendClient) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apperr.Internal("failed to create request", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}
	return httpReq, nil
}

// doJSON marshals in (when non-nil) and decodes the response into out (when non-nil)
func (c *BackendClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		reqBody, err := json.Marshal(in)
		if err != nil {
			return apperr.Internal("failed to marshal request", err)
		}
		body = bytes.NewReader(reqBody)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *BackendClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	httpReq, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return transportError("", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError("", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("", resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apperr.Unavailable("backend returned an unreadable response", err)
	}
	return nil
}

// statusError maps a non-2xx backend status onto the error taxonomy
func statusError(op string, status int, body []byte) error {
	msg := backendMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	var e *apperr.Error
	switch {
	case status == http.StatusNotFound:
		e = apperr.NotFound(msg)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e = apperr.Validation(msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = apperr.Permission(msg)
	case status == http.StatusConflict:
		e = apperr.Conflict(msg)
	default:
		e = apperr.Unavailable(msg, fmt.Errorf("backend status %d", status))
	}
	return e.WithOp(op)
}

// backendMessage extracts {"error": "..."} or {"detail": "..."} when present
func backendMessage(body []byte) string {
	var envelope struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Detail != "" {
			return envelope.Detail
		}
	}
	return ""
}

func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.Unavailable("backend unreachable", err).WithOp(op)
}

// withOp tags an apperr with the client operation, keeping the first tag set
func withOp(err error, op string) error {
	var e *apperr.Error
	if errors.As(err, &e) && e.Op == "" {
		e.Op = op
	}
	return err
}

func multipartBody(field, filename, contentType string, data []byte, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
