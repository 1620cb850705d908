package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/upb/search-gateway/services/providers"
)

const (
	defaultBaseURL = "https://google.serper.dev"
)

// SerperAdapter implements the Provider interface for serper.dev
type SerperAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewSerperAdapter creates a new Serper adapter
func NewSerperAdapter(config providers.ProviderConfig) *SerperAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &SerperAdapter{
		config:     config,
		httpClient: providers.NewHTTPClient(config.Timeout),
		now:        time.Now,
	}
}

// Build is a providers.ProviderBuilder for Serper
func Build(config providers.ProviderConfig) (providers.Provider, error) {
	return NewSerperAdapter(config), nil
}

// Engine returns the engine name
func (a *SerperAdapter) Engine() providers.Engine {
	return providers.EngineSerper
}

// Execute performs a search request
func (a *SerperAdapter) Execute(ctx context.Context, q providers.Query) ([]providers.SearchResult, error) {
	endpoint := "/search"
	if q.Type == providers.IntentNews {
		endpoint = "/news"
	}

	reqBody, err := json.Marshal(SerperRequest{Query: q.Text, Num: q.MaxResults})
	if err != nil {
		return nil, providers.NewProviderError(a.Engine(), providers.KindMalformed, "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Engine(), providers.KindUnreachable, "failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-KEY", a.config.APIKey)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := providers.Do(ctx, a.httpClient, a.Engine(), httpReq)
	if err != nil {
		return nil, err
	}

	if !resp.OK() {
		return nil, providers.ClassifyStatus(a.Engine(), resp, a.now())
	}

	var serperResp SerperResponse
	if err := providers.DecodeJSON(a.Engine(), resp, &serperResp); err != nil {
		return nil, err
	}

	return a.convertResults(&serperResp, q.MaxResults), nil
}

func (a *SerperAdapter) convertResults(resp *SerperResponse, maxResults int) []providers.SearchResult {
	results := make([]providers.SearchResult, 0, maxResults)

	for _, item := range resp.Organic {
		if r, ok := providers.NewResult(a.Engine(), item.Title, item.Link, item.Snippet); ok {
			results = append(results, r)
		}
	}

	for _, item := range resp.News {
		if r, ok := providers.NewResult(a.Engine(), item.Title, item.Link, item.Snippet); ok {
			results = append(results, r)
		}
	}

	// The knowledge graph card trails the organic hits
	if kg := resp.KnowledgeGraph.Value; kg != nil {
		if r, ok := providers.NewResult(a.Engine(), kg.Title, kg.DescriptionLink, kg.Description); ok {
			results = append(results, r)
		}
	}

	return providers.Truncate(results, maxResults)
}

// Serper-specific request/response types

type SerperRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num,omitempty"`
}

type SerperResponse struct {
	Organic        providers.Entries[SerperItem]         `json:"organic"`
	News           providers.Entries[SerperItem]         `json:"news"`
	KnowledgeGraph providers.Entry[SerperKnowledgeGraph] `json:"knowledgeGraph"`
}

type SerperItem struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position,omitempty"`
}

type SerperKnowledgeGraph struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	DescriptionLink string `json:"descriptionLink"`
}
