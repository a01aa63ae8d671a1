package tams

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds every upstream call. A timeout surfaces as an
// ordinary fetch error; no retries are attempted here.
const DefaultTimeout = 30 * time.Second

// Unbounded requests all available segments regardless of pagination depth.
func Unbounded() float64 { return math.Inf(1) }

// UpstreamError reports a non-success response from the store.
type UpstreamError struct {
	Status int
	URL    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream fetch failed: status %d from %s", e.Status, e.URL)
}

// Client talks to the upstream media-timestamp store. All entities are
// fetched fresh per request; the client holds no flow or segment state.
type Client struct {
	endpoint string
	tokens   TokenSource
	http     *http.Client
}

// NewClient returns a Client for the store at endpoint (no trailing slash
// required). tokens supplies the bearer token per call.
func NewClient(endpoint string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		tokens:   tokens,
		http:     &http.Client{Timeout: timeout},
	}
}

// Source fetches a source's metadata.
func (c *Client) Source(ctx context.Context, id string) (Source, error) {
	var src Source
	if err := c.getJSON(ctx, c.endpoint+"/sources/"+id, &src); err != nil {
		return Source{}, err
	}
	return src, nil
}

// Flow fetches a flow's metadata, including its time-range summary.
func (c *Client) Flow(ctx context.Context, id string) (Flow, error) {
	var flow Flow
	if err := c.getJSON(ctx, c.endpoint+"/flows/"+id+"?include_timerange=true", &flow); err != nil {
		return Flow{}, err
	}
	return flow, nil
}

// FlowsBySource fetches every flow belonging to a source.
func (c *Client) FlowsBySource(ctx context.Context, sourceID string) ([]Flow, error) {
	var flows []Flow
	if err := c.getJSON(ctx, c.endpoint+"/flows?source_id="+sourceID, &flows); err != nil {
		return nil, err
	}
	return flows, nil
}

// Segments fetches up to limit segments of a flow, newest first, following
// the store's pagination links. Pass Unbounded() to fetch all segments.
// Pagination stops as soon as limit is satisfied, even mid-page.
func (c *Client) Segments(ctx context.Context, flowID string, limit float64) ([]Segment, error) {
	url := c.endpoint + "/flows/" + flowID + "/segments?reverse_order=true"
	if !math.IsInf(limit, 1) {
		url += fmt.Sprintf("&limit=%d", int(limit))
	}

	var out []Segment
	for url != "" && float64(len(out)) < limit {
		var page []Segment
		next, err := c.getJSONPage(ctx, url, &page)
		if err != nil {
			return nil, err
		}
		for _, seg := range page {
			out = append(out, seg)
			if float64(len(out)) >= limit {
				return out, nil
			}
		}
		url = next
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	_, err := c.getJSONPage(ctx, url, v)
	return err
}

// getJSONPage performs one authenticated GET, decodes the JSON body into v
// and returns the "next" pagination link, if any.
func (c *Client) getJSONPage(ctx context.Context, url string, v any) (next string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", url, err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UpstreamError{Status: resp.StatusCode, URL: url}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return "", fmt.Errorf("decode %s: %w", url, err)
	}

	return nextLink(resp.Header), nil
}

// nextLink extracts the rel="next" target from an RFC 5988 Link header.
func nextLink(h http.Header) string {
	for _, header := range h.Values("Link") {
		for _, link := range strings.Split(header, ",") {
			parts := strings.Split(link, ";")
			if len(parts) < 2 {
				continue
			}
			target := strings.Trim(strings.TrimSpace(parts[0]), "<>")
			for _, param := range parts[1:] {
				k, val, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok {
					continue
				}
				if strings.TrimSpace(k) == "rel" && strings.Trim(strings.TrimSpace(val), `"`) == "next" {
					return target
				}
			}
		}
	}
	return ""
}
