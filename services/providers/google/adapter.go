package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/upb/search-gateway/services/providers"
)

const (
	defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

	// maxNum is the largest page size the Custom Search API accepts
	maxNum = 10
)

// ErrMissingSearchEngineID is returned when no cx is configured
var ErrMissingSearchEngineID = errors.New("google custom search requires a search engine id")

// GoogleAdapter implements the Provider interface for Google Custom Search
type GoogleAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewGoogleAdapter creates a new Google Custom Search adapter
func NewGoogleAdapter(config providers.ProviderConfig) *GoogleAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &GoogleAdapter{
		config:     config,
		httpClient: providers.NewHTTPClient(config.Timeout),
		now:        time.Now,
	}
}

// Build is a providers.ProviderBuilder for Google
func Build(config providers.ProviderConfig) (providers.Provider, error) {
	if config.SearchEngineID == "" {
		return nil, ErrMissingSearchEngineID
	}
	return NewGoogleAdapter(config), nil
}

// Engine returns the engine name
func (a *GoogleAdapter) Engine() providers.Engine {
	return providers.EngineGoogle
}

// Execute performs a search request
func (a *GoogleAdapter) Execute(ctx context.Context, q providers.Query) ([]providers.SearchResult, error) {
	num := q.MaxResults
	if num > maxNum {
		num = maxNum
	}

	params := url.Values{}
	params.Set("key", a.config.APIKey)
	params.Set("cx", a.config.SearchEngineID)
	params.Set("q", q.Text)
	params.Set("num", strconv.Itoa(num))
	if q.Type == providers.IntentNews {
		params.Set("sort", "date")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, providers.NewProviderError(a.Engine(), providers.KindUnreachable, "failed to create request", 0, err)
	}
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := providers.Do(ctx, a.httpClient, a.Engine(), httpReq)
	if err != nil {
		return nil, err
	}

	if !resp.OK() {
		return nil, a.handleErrorResponse(resp)
	}

	var googleResp GoogleResponse
	if err := providers.DecodeJSON(a.Engine(), resp, &googleResp); err != nil {
		return nil, err
	}

	results := make([]providers.SearchResult, 0, len(googleResp.Items))
	for _, item := range googleResp.Items {
		if r, ok := providers.NewResult(a.Engine(), item.Title, item.Link, item.Snippet); ok {
			results = append(results, r)
		}
	}

	return providers.Truncate(results, q.MaxResults), nil
}

// handleErrorResponse inspects the API error reasons. Quota errors come back
// as 403 and must not be read as a credential rejection.
func (a *GoogleAdapter) handleErrorResponse(resp *providers.Response) error {
	var errResp GoogleErrorResponse
	if err := json.Unmarshal(resp.Body, &errResp); err == nil && errResp.Error != nil {
		msg := errResp.Error.Message

		for _, detail := range errResp.Error.Errors {
			switch detail.Reason {
			case "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded", "quotaExceeded":
				return providers.NewRateLimitedError(a.Engine(), resp.StatusCode,
					providers.ParseRetryAfter(resp.Header.Get("Retry-After"), a.now()))
			case "keyInvalid", "keyExpired":
				return providers.NewProviderError(a.Engine(), providers.KindAuth, msg, resp.StatusCode, nil)
			}
		}

		switch errResp.Error.Status {
		case "RESOURCE_EXHAUSTED":
			return providers.NewRateLimitedError(a.Engine(), resp.StatusCode,
				providers.ParseRetryAfter(resp.Header.Get("Retry-After"), a.now()))
		case "UNAUTHENTICATED", "PERMISSION_DENIED":
			return providers.NewProviderError(a.Engine(), providers.KindAuth, msg, resp.StatusCode, nil)
		}
	}

	return providers.ClassifyStatus(a.Engine(), resp, a.now())
}

// Google-specific response types

type GoogleResponse struct {
	Items providers.Entries[GoogleItem] `json:"items"`
}

type GoogleItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"displayLink,omitempty"`
}

type GoogleErrorResponse struct {
	Error *GoogleError `json:"error"`
}

type GoogleError struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Status  string              `json:"status"`
	Errors  []GoogleErrorDetail `json:"errors"`
}

type GoogleErrorDetail struct {
	Domain  string `json:"domain"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}
