package jobsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://www.jobsearch.az"
	defaultAPIPath = "/api-az/vacancies-az"
	defaultTimeout = 30 * time.Second

	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"
)

// Config controls the API client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Locale    string
}

// Client fetches listings pages and detail records from the jobsearch.az
// API. It owns a single resty client so the session cookies obtained during
// priming are reused across all requests.
type Client struct {
	http    *resty.Client
	baseURL string
	locale  string
	logger  *zap.Logger
}

// New builds a Client with the browser-like header set the API requires.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Locale == "" {
		cfg.Locale = "az"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeaders(map[string]string{
			"accept":           "application/json, text/plain, */*",
			"accept-language":  "en-GB,en-US;q=0.9,en;q=0.8,az;q=0.6",
			"referer":          cfg.BaseURL + "/vacancies",
			"user-agent":       cfg.UserAgent,
			"x-requested-with": "XMLHttpRequest",
		})

	return &Client{
		http:    http,
		baseURL: cfg.BaseURL,
		locale:  cfg.Locale,
		logger:  logger,
	}
}

// Prime performs one request against the public site so the session cookies
// required by the API endpoints are present in the jar. A failure here is
// logged but not fatal: the API sometimes accepts cookie-less requests.
func (c *Client) Prime(ctx context.Context) {
	resp, err := c.http.R().SetContext(ctx).Get("/vacancies")
	if err != nil {
		c.logger.Warn("session priming failed", zap.Error(err))
		return
	}
	if resp.StatusCode() != 200 {
		c.logger.Warn("session priming returned unexpected status",
			zap.Int("status", resp.StatusCode()))
		return
	}
	c.logger.Debug("session primed")
}

// FetchListings retrieves one page of the listings endpoint. The zero cursor
// requests the first page; otherwise the cursor's page and ignore parameters
// are echoed back to the server.
func (c *Client) FetchListings(ctx context.Context, cursor Cursor) (ListingsPage, error) {
	page := cursor.Page
	if page <= 0 {
		page = 1
	}
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("hl", c.locale).
		SetQueryParam("page", strconv.Itoa(page))
	if cursor.Ignore != "" {
		req.SetQueryParam("ignore", cursor.Ignore)
	}
	if cursor.IgnoreHash != "" {
		req.SetQueryParam("ignore_hash", cursor.IgnoreHash)
	}

	resp, err := req.Get(defaultAPIPath)
	if err != nil {
		return ListingsPage{}, c.wrapTransportErr("", err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return ListingsPage{}, &Error{Kind: classifyStatus(code), StatusCode: code}
	}

	var out ListingsPage
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return ListingsPage{}, &Error{Kind: KindParse, Err: fmt.Errorf("decode listings page %d: %w", page, err)}
	}
	return out, nil
}

// FetchDetail retrieves the full record for one slug. The referer is set per
// slug to match browser behavior on the detail view.
func (c *Client) FetchDetail(ctx context.Context, slug string) (*JobPayload, error) {
	if slug == "" {
		return nil, &Error{Kind: KindPermanent, Err: fmt.Errorf("empty slug")}
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("hl", c.locale).
		SetHeader("referer", c.baseURL+"/vacancies/"+slug).
		SetPathParam("slug", slug).
		Get(defaultAPIPath + "/{slug}")
	if err != nil {
		return nil, c.wrapTransportErr(slug, err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return nil, &Error{Kind: classifyStatus(code), Slug: slug, StatusCode: code}
	}

	var payload JobPayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, &Error{Kind: KindParse, Slug: slug, Err: fmt.Errorf("decode detail: %w", err)}
	}
	if payload.ID <= 0 {
		return nil, &Error{Kind: KindParse, Slug: slug, Err: fmt.Errorf("detail payload has no id")}
	}
	return &payload, nil
}

func (c *Client) wrapTransportErr(slug string, err error) error {
	return &Error{Kind: KindOf(err), Slug: slug, Err: err}
}
