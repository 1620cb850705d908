package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/upb/search-gateway/services/providers"
)

const (
	defaultBaseURL = "https://api.tavily.com"

	// Tavily reports plan and usage exhaustion with non-standard codes
	statusPlanLimitExceeded  = 432
	statusUsageLimitExceeded = 433
)

var (
	newsDomains     = []string{"news.google.com", "cnn.com", "bbc.com", "reuters.com"}
	academicDomains = []string{"scholar.google.com", "arxiv.org", "pubmed.ncbi.nlm.nih.gov"}
)

// TavilyAdapter implements the Provider interface for Tavily
type TavilyAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewTavilyAdapter creates a new Tavily adapter
func NewTavilyAdapter(config providers.ProviderConfig) *TavilyAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	return &TavilyAdapter{
		config:     config,
		httpClient: providers.NewHTTPClient(config.Timeout),
		now:        time.Now,
	}
}

// Build is a providers.ProviderBuilder for Tavily
func Build(config providers.ProviderConfig) (providers.Provider, error) {
	return NewTavilyAdapter(config), nil
}

// Engine returns the engine name
func (a *TavilyAdapter) Engine() providers.Engine {
	return providers.EngineTavily
}

// Execute performs a search request
func (a *TavilyAdapter) Execute(ctx context.Context, q providers.Query) ([]providers.SearchResult, error) {
	reqBody, err := json.Marshal(a.buildTavilyRequest(q))
	if err != nil {
		return nil, providers.NewProviderError(a.Engine(), providers.KindMalformed, "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/search", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Engine(), providers.KindUnreachable, "failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
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

	var tavilyResp TavilyResponse
	if err := providers.DecodeJSON(a.Engine(), resp, &tavilyResp); err != nil {
		return nil, err
	}

	results := make([]providers.SearchResult, 0, len(tavilyResp.Results))
	for _, item := range tavilyResp.Results {
		if r, ok := providers.NewResult(a.Engine(), item.Title, item.URL, item.Content); ok {
			results = append(results, r)
		}
	}

	return providers.Truncate(results, q.MaxResults), nil
}

func (a *TavilyAdapter) buildTavilyRequest(q providers.Query) TavilyRequest {
	req := TavilyRequest{
		APIKey:      a.config.APIKey,
		Query:       q.Text,
		SearchDepth: "basic",
		MaxResults:  q.MaxResults,
	}

	switch q.Type {
	case providers.IntentNews:
		req.SearchDepth = "advanced"
		req.Topic = "news"
		req.IncludeDomains = newsDomains
	case providers.IntentAcademic:
		req.IncludeDomains = academicDomains
	}

	return req
}

// handleErrorResponse handles Tavily error responses
func (a *TavilyAdapter) handleErrorResponse(resp *providers.Response) error {
	switch resp.StatusCode {
	case statusPlanLimitExceeded, statusUsageLimitExceeded:
		return providers.NewRateLimitedError(a.Engine(), resp.StatusCode,
			providers.ParseRetryAfter(resp.Header.Get("Retry-After"), a.now()))
	}
	return providers.ClassifyStatus(a.Engine(), resp, a.now())
}

// Tavily-specific request/response types

type TavilyRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	Topic          string   `json:"topic,omitempty"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

// TavilyResponse keeps only the hit list; the generated answer is ignored
type TavilyResponse struct {
	Results providers.Entries[TavilyResult] `json:"results"`
}

type TavilyResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
}
