// Package pagetree provides an HTTP client for the content store's page
// tree API. Scans are seeded from the live pages it reports.
package pagetree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jonesrussell/linkscan/internal/domain"
)

const (
	// DefaultBaseURL is the default base URL for the page tree API.
	DefaultBaseURL = "http://localhost:8000/api/v2"
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second
)

// Site is a site known to the content store.
type Site struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname"`
	RootURL  string `json:"root_url"`
}

// Client is an HTTP client for the content store page tree API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiToken   string
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API client.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the timeout for API requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithAPIToken sets the bearer token sent with every request.
func WithAPIToken(token string) Option {
	return func(c *Client) {
		c.apiToken = token
	}
}

// NewClient creates a new page tree API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

type listSitesResponse struct {
	Sites []Site `json:"sites"`
}

type listPagesResponse struct {
	Pages []domain.Page `json:"pages"`
}

// ListSites retrieves all sites from the content store.
func (c *Client) ListSites(ctx context.Context) ([]Site, error) {
	sitesURL, err := url.JoinPath(c.baseURL, "sites")
	if err != nil {
		return nil, fmt.Errorf("failed to construct URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitesURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var response listSitesResponse
	if doErr := c.doRequest(req, &response); doErr != nil {
		return nil, fmt.Errorf("failed to list sites: %w", doErr)
	}

	return response.Sites, nil
}

// LivePages retrieves the live, publicly visible pages of a site, most
// recently updated first.
func (c *Client) LivePages(ctx context.Context, siteID string) ([]domain.Page, error) {
	pagesURL, err := url.JoinPath(c.baseURL, "sites", siteID, "pages")
	if err != nil {
		return nil, fmt.Errorf("failed to construct URL: %w", err)
	}
	pagesURL += "?live=true&order=-last_updated"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pagesURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var response listPagesResponse
	if doErr := c.doRequest(req, &response); doErr != nil {
		return nil, fmt.Errorf("failed to list pages: %w", doErr)
	}

	return response.Pages, nil
}

// doRequest executes an HTTP request and decodes the response.
func (c *Client) doRequest(req *http.Request, result any) error {
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Op == "dial" {
			return fmt.Errorf("failed to connect to page tree API at %s: %w. "+
				"Ensure the content store is running and accessible", c.baseURL, err)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("failed to read response body: %w", readErr)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if resp.StatusCode == http.StatusNoContent || result == nil {
		return nil
	}

	if unmarshalErr := json.Unmarshal(body, result); unmarshalErr != nil {
		return fmt.Errorf("failed to decode response: %w", unmarshalErr)
	}

	return nil
}
