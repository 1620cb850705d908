package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxBodyBytes bounds how much of a provider response we read
const maxBodyBytes = 4 << 20

// Response is a fully read provider HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is 2xx
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do sends req and reads the body. Only transport failures are returned as
// errors; status handling is left to the caller.
func Do(ctx context.Context, client *http.Client, engine Engine, req *http.Request) (*Response, error) {
	httpResp, err := client.Do(req)
	if err != nil {
		return nil, ClassifyTransportError(ctx, engine, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, ClassifyTransportError(ctx, engine, err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

// ClassifyTransportError maps a failed round trip to timeout or unreachable
func ClassifyTransportError(ctx context.Context, engine Engine, err error) *ProviderError {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProviderError(engine, KindTimeout, "request deadline exceeded", 0, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewProviderError(engine, KindTimeout, "network timeout", 0, err)
	}

	return NewProviderError(engine, KindUnreachable, "request failed", 0, err)
}

// ClassifyStatus maps a non-2xx response using the generic HTTP rules.
// Adapters that understand provider-specific error bodies check those first.
func ClassifyStatus(engine Engine, resp *Response, now time.Time) *ProviderError {
	msg := errorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewProviderError(engine, KindAuth, msg, resp.StatusCode, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewRateLimitedError(engine, resp.StatusCode, ParseRetryAfter(resp.Header.Get("Retry-After"), now))
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return NewProviderError(engine, KindTimeout, msg, resp.StatusCode, nil)
	default:
		return NewProviderError(engine, KindUnreachable, msg, resp.StatusCode, nil)
	}
}

// ParseRetryAfter reads a Retry-After header given as delta-seconds or an
// HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}

	return 0
}

// DecodeJSON unmarshals a provider payload, reporting malformed bodies
func DecodeJSON(engine Engine, resp *Response, v interface{}) error {
	if len(strings.TrimSpace(string(resp.Body))) == 0 {
		return NewProviderError(engine, KindMalformed, "empty response body", resp.StatusCode, nil)
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return NewProviderError(engine, KindMalformed, "failed to decode response", resp.StatusCode, err)
	}
	return nil
}

// Entries is a list of provider hits decoded one entry at a time. An entry
// that does not fit T is dropped instead of failing the whole payload.
type Entries[T any] []T

// UnmarshalJSON implements json.Unmarshaler
func (e *Entries[T]) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*e = nil
		return nil
	}

	out := make(Entries[T], 0, len(raw))
	for _, msg := range raw {
		var item T
		if err := json.Unmarshal(msg, &item); err != nil {
			continue
		}
		out = append(out, item)
	}
	*e = out
	return nil
}

// Entry is a single optional object decoded like one element of Entries.
// Value is nil when the object is absent or does not fit T.
type Entry[T any] struct {
	Value *T
}

// UnmarshalJSON implements json.Unmarshaler
func (e *Entry[T]) UnmarshalJSON(data []byte) error {
	e.Value = nil
	if string(data) == "null" {
		return nil
	}
	var item T
	if err := json.Unmarshal(data, &item); err == nil {
		e.Value = &item
	}
	return nil
}

// NewResult normalizes one hit. Entries without a title or url are rejected.
func NewResult(engine Engine, title, url, snippet string) (SearchResult, bool) {
	title = strings.TrimSpace(title)
	url = strings.TrimSpace(url)
	if title == "" || url == "" {
		return SearchResult{}, false
	}
	return SearchResult{
		Title:        title,
		URL:          url,
		Snippet:      strings.TrimSpace(snippet),
		SourceEngine: engine,
	}, true
}

// Truncate caps results at max without padding
func Truncate(results []SearchResult, max int) []SearchResult {
	if max >= 0 && len(results) > max {
		return results[:max]
	}
	return results
}

// NewHTTPClient returns a client bounded by the adapter timeout
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if len(payload.Error) > 0 {
			var s string
			if json.Unmarshal(payload.Error, &s) == nil && s != "" {
				return s
			}
			var obj struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(payload.Error, &obj) == nil && obj.Message != "" {
				return obj.Message
			}
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		return "unexpected status"
	}
	return text
}
