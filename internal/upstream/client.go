package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/listhub/editor-backend/internal/models"
)

var (
	// ErrEmptyID means no listing ID was supplied; no request is issued.
	ErrEmptyID = errors.New("listing id is empty")
	// ErrNetwork covers transport failures and non-2xx upstream responses.
	ErrNetwork = errors.New("upstream request failed")
	// ErrParse means the upstream body was not a usable response envelope.
	ErrParse = errors.New("upstream response could not be decoded")
)

// envelope is the upstream wire format: { data, message?, success? }.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Success *bool           `json:"success"`
}

// Client talks to the marketplace API that owns listings. It does no
// caching and no background revalidation: the session controls refresh
// timing so an in-flight edit is never clobbered by a surprise refetch.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 8 * time.Second,
		},
	}
}

// FetchListing retrieves the current listing record by ID.
func (c *Client) FetchListing(ctx context.Context, id string) (*models.Listing, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyID
	}

	endpoint := fmt.Sprintf("%s/api/listing-details?id=%s", c.BaseURL, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: listing-details http %d", ErrNetwork, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if env.Success != nil && !*env.Success {
		if env.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrNetwork, env.Message)
		}
		return nil, fmt.Errorf("%w: upstream reported failure", ErrNetwork)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: envelope has no data", ErrParse)
	}

	var listing models.Listing
	if err := json.Unmarshal(env.Data, &listing); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if listing.ID == "" {
		listing.ID = id
	}

	return &listing, nil
}

// UpdateListing pushes the assembled submission to the upstream update
// endpoint. The caller guarantees every image URL is already hosted.
func (c *Client) UpdateListing(ctx context.Context, req *models.UpdateListingRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}

	endpoint := c.BaseURL + "/api/listing-details"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&env); decodeErr == nil && env.Message != "" {
			return fmt.Errorf("%w: %s", ErrNetwork, env.Message)
		}
		return fmt.Errorf("%w: update http %d", ErrNetwork, resp.StatusCode)
	}

	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 8 * time.Second}
}
