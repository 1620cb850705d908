package bing

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/upb/search-gateway/services/providers"
)

const (
	defaultBaseURL = "https://api.bing.microsoft.com/v7.0"
	defaultMarket  = "en-US"
)

// BingAdapter implements the Provider interface for the Bing Web Search API
type BingAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewBingAdapter creates a new Bing adapter
func NewBingAdapter(config providers.ProviderConfig) *BingAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	if config.Market == "" {
		config.Market = defaultMarket
	}

	return &BingAdapter{
		config:     config,
		httpClient: providers.NewHTTPClient(config.Timeout),
		now:        time.Now,
	}
}

// Build is a providers.ProviderBuilder for Bing
func Build(config providers.ProviderConfig) (providers.Provider, error) {
	return NewBingAdapter(config), nil
}

// Engine returns the engine name
func (a *BingAdapter) Engine() providers.Engine {
	return providers.EngineBing
}

// Execute performs a search request. News intents go to the news vertical.
func (a *BingAdapter) Execute(ctx context.Context, q providers.Query) ([]providers.SearchResult, error) {
	endpoint := "/search"
	if q.Type == providers.IntentNews {
		endpoint = "/news/search"
	}

	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("count", strconv.Itoa(q.MaxResults))
	params.Set("mkt", a.config.Market)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, providers.NewProviderError(a.Engine(), providers.KindUnreachable, "failed to create request", 0, err)
	}

	httpReq.Header.Set("Ocp-Apim-Subscription-Key", a.config.APIKey)
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

	var bingResp BingResponse
	if err := providers.DecodeJSON(a.Engine(), resp, &bingResp); err != nil {
		return nil, err
	}

	var results []providers.SearchResult
	if q.Type == providers.IntentNews {
		results = make([]providers.SearchResult, 0, len(bingResp.Value))
		for _, item := range bingResp.Value {
			if r, ok := providers.NewResult(a.Engine(), item.Name, item.URL, item.Description); ok {
				results = append(results, r)
			}
		}
	} else {
		var pages []BingWebPage
		if bingResp.WebPages != nil {
			pages = bingResp.WebPages.Value
		}
		results = make([]providers.SearchResult, 0, len(pages))
		for _, item := range pages {
			if r, ok := providers.NewResult(a.Engine(), item.Name, item.URL, item.Snippet); ok {
				results = append(results, r)
			}
		}
	}

	return providers.Truncate(results, q.MaxResults), nil
}

// Bing-specific response types

type BingResponse struct {
	WebPages *BingWebPages                    `json:"webPages,omitempty"`
	Value    providers.Entries[BingNewsEntry] `json:"value,omitempty"`
}

type BingWebPages struct {
	Value providers.Entries[BingWebPage] `json:"value"`
}

type BingWebPage struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type BingNewsEntry struct {
	Name          string `json:"name"`
	URL           string `json:"url"`
	Description   string `json:"description"`
	DatePublished string `json:"datePublished,omitempty"`
}
