package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultSearchURL = "https://api.duckduckgo.com"

// DuckDuckGo queries the DuckDuckGo instant answer API.
type DuckDuckGo struct {
	client *resty.Client
}

func NewDuckDuckGo(baseURL string, timeout time.Duration) *DuckDuckGo {
	if baseURL == "" {
		baseURL = DefaultSearchURL
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return &DuckDuckGo{client: c}
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	Answer        string     `json:"Answer"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, observe("search", errors.New("empty query"))
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":             query,
			"format":        "json",
			"no_html":       "1",
			"skip_disambig": "1",
		}).
		Get("/")
	if err != nil {
		return nil, observe("search", fmt.Errorf("search request: %w", err))
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, observe("search", fmt.Errorf("search status %d", resp.StatusCode()))
	}

	var dr ddgResponse
	if err := json.Unmarshal(resp.Body(), &dr); err != nil {
		return nil, observe("search", fmt.Errorf("decode response: %w", err))
	}
	return collectResults(dr, maxResults), observe("search", nil)
}

func collectResults(dr ddgResponse, max int) []SearchResult {
	var out []SearchResult
	add := func(r SearchResult) bool {
		if max > 0 && len(out) >= max {
			return false
		}
		out = append(out, r)
		return true
	}

	if dr.Answer != "" {
		add(SearchResult{Title: dr.Heading, Snippet: dr.Answer})
	}
	if dr.AbstractText != "" {
		add(SearchResult{Title: dr.Heading, Snippet: dr.AbstractText, URL: dr.AbstractURL})
	}

	var walk func(topics []ddgTopic) bool
	walk = func(topics []ddgTopic) bool {
		for _, t := range topics {
			if len(t.Topics) > 0 {
				if !walk(t.Topics) {
					return false
				}
				continue
			}
			if t.Text == "" {
				continue
			}
			title, _, _ := strings.Cut(t.Text, " - ")
			if !add(SearchResult{Title: title, Snippet: t.Text, URL: t.FirstURL}) {
				return false
			}
		}
		return true
	}
	walk(dr.RelatedTopics)
	return out
}
