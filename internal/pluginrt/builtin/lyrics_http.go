package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stellatune/engine/internal/pluginrt"
)

// httpTimeout bounds every outbound lookup the built-in LyricsProvider
// makes, so a slow or hung upstream never stalls the plugin runtime.
const httpTimeout = 4 * time.Second

// HTTPLyricsProvider is the built-in LyricsProvider capability: a bounded
// net/http client that GETs a configured search or fetch URL and returns
// the response body as is (no OpenGraph or other parsing), so the engine
// has a usable default without any external plugin installed.
//
// Grounded on the teacher server's linkpreview.go (bounded-client OpenGraph
// scrape for chat link previews); only its bounded-client request pattern
// is reused here, for track lyrics lookup.
type HTTPLyricsProvider struct {
	client      *http.Client
	searchURL   string
	fetchURL    string
}

// NewHTTPLyricsProvider returns a LyricsProvider querying searchURL/fetchURL
// (format strings taking one %s query parameter placeholder).
func NewHTTPLyricsProvider(searchURL, fetchURL string) *HTTPLyricsProvider {
	return &HTTPLyricsProvider{
		client:    &http.Client{Timeout: httpTimeout},
		searchURL: searchURL,
		fetchURL:  fetchURL,
	}
}

func (p *HTTPLyricsProvider) OnEnable() error                        { return nil }
func (p *HTTPLyricsProvider) OnDisable(pluginrt.DisableReason) error { return nil }
func (p *HTTPLyricsProvider) PlanConfigUpdate(string) (pluginrt.ConfigPlan, error) {
	return pluginrt.ConfigPlan{Mode: pluginrt.ModeApplied}, nil
}
func (p *HTTPLyricsProvider) ApplyConfigUpdate(string) (pluginrt.ConfigOutcome, error) {
	return pluginrt.ConfigOutcome{Mode: pluginrt.ModeApplied}, nil
}

type lyricsQuery struct {
	Query string `json:"query"`
}

type lyricsTrack struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// SearchJSON queries the configured search endpoint for candidates
// matching the decoded query's free-text "query" field.
func (p *HTTPLyricsProvider) SearchJSON(queryJSON string) (string, error) {
	var q lyricsQuery
	if err := json.Unmarshal([]byte(queryJSON), &q); err != nil {
		return "", fmt.Errorf("builtin: decode lyrics query: %w", err)
	}
	endpoint := fmt.Sprintf(p.searchURL, url.QueryEscape(q.Query))
	return p.get(endpoint)
}

// FetchJSON fetches lyrics for a track decoded from trackJSON's
// "title"/"artist" fields.
func (p *HTTPLyricsProvider) FetchJSON(trackJSON string) (string, error) {
	var t lyricsTrack
	if err := json.Unmarshal([]byte(trackJSON), &t); err != nil {
		return "", fmt.Errorf("builtin: decode lyrics track: %w", err)
	}
	query := strings.TrimSpace(t.Artist + " " + t.Title)
	endpoint := fmt.Sprintf(p.fetchURL, url.QueryEscape(query))
	return p.get(endpoint)
}

func (p *HTTPLyricsProvider) get(endpoint string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("builtin: build lyrics request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("builtin: lyrics request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("builtin: lyrics endpoint returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("builtin: read lyrics response: %w", err)
	}
	return string(body), nil
}
