// Package whop is a client for the Whop membership API. The sync worker
// reads memberships (renewal dates, billing status) and members (lifetime
// spend) from it; everything else about Whop stays on the dashboard side.
package whop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/griphq/retention-engine/internal/pkg/httpretry"
)

const defaultBaseURL = "https://api.whop.com/api/v2"

// Client calls the Whop REST API with bearer auth and retrying transport.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.Doer
	pageSize   int
}

// NewClient creates a Whop API client. baseURL is overridable for tests; an
// empty string selects the production endpoint.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpretry.New(&http.Client{Timeout: timeout}, 3),
		pageSize:   100,
	}
}

// Membership is one membership record from the memberships endpoint. Whop
// timestamps arrive as unix-second strings or ISO strings depending on the
// field; ParseTimestamp handles both.
type Membership struct {
	ID                 string   `json:"id"`
	Status             string   `json:"status"`
	CancelAtPeriodEnd  bool     `json:"cancel_at_period_end"`
	JoinedAt           *string  `json:"joined_at"`
	RenewalPeriodStart *string  `json:"renewal_period_start"`
	RenewalPeriodEnd   *string  `json:"renewal_period_end"`
	Plan               *Plan    `json:"plan"`
	Product            *Product `json:"product"`
	User               *User    `json:"user"`
}

// Plan identifies the billing plan behind a membership.
type Plan struct {
	ID string `json:"id"`
}

// Product carries the human-readable product title used as the plan name.
type Product struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// User is the Whop account attached to a membership.
type User struct {
	ID       string  `json:"id"`
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Username string  `json:"username"`
}

// CompanyMember is one record from the members endpoint, which carries
// lifetime spend the memberships endpoint lacks.
type CompanyMember struct {
	User          *User `json:"user"`
	USDTotalSpent int64 `json:"usd_total_spent"`
}

type page[T any] struct {
	Data       []T `json:"data"`
	Pagination struct {
		CurrentPage int `json:"current_page"`
		TotalPage   int `json:"total_page"`
	} `json:"pagination"`
}

// ListMemberships returns every membership for a company, walking the
// paginated endpoint to the end.
func (c *Client) ListMemberships(ctx context.Context, companyID string) ([]Membership, error) {
	return listAll[Membership](ctx, c, "/memberships", companyID)
}

// ListMembers returns every company member with lifetime spend.
func (c *Client) ListMembers(ctx context.Context, companyID string) ([]CompanyMember, error) {
	return listAll[CompanyMember](ctx, c, "/members", companyID)
}

func listAll[T any](ctx context.Context, c *Client, path, companyID string) ([]T, error) {
	var out []T
	for pageNum := 1; ; pageNum++ {
		params := url.Values{
			"company_id": {companyID},
			"per":        {strconv.Itoa(c.pageSize)},
			"page":       {strconv.Itoa(pageNum)},
		}
		body, err := c.get(ctx, path, params)
		if err != nil {
			return nil, err
		}
		var p page[T]
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decoding %s response: %w", path, err)
		}
		out = append(out, p.Data...)
		if p.Pagination.TotalPage == 0 || pageNum >= p.Pagination.TotalPage {
			return out, nil
		}
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("whop API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// ParseTimestamp parses a Whop timestamp, which is either a unix-seconds
// string or RFC 3339. nil or unparseable values return the zero time.
func ParseTimestamp(ts *string) time.Time {
	if ts == nil || *ts == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseInt(*ts, 10, 64); err == nil && secs < 1e12 {
		return time.Unix(secs, 0).UTC()
	}
	t, err := time.Parse(time.RFC3339, *ts)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
