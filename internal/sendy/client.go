// Package sendy provides a client for the Sendy email platform API.
package sendy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Sendy reports campaign creation as a plain-text body. These are the only
// two prefixes that mean the campaign was accepted; everything else is an
// error message.
const (
	responseCreatedAndSending = "Campaign created and now sending"
	responseCreated           = "Campaign created"
)

// Config holds Sendy client configuration.
type Config struct {
	BaseURL   string // Sendy installation root, e.g. https://mail.example.com
	APIKey    string
	FromName  string // default sender name when a step omits one
	FromEmail string // default sender address when a step omits one
	Timeout   time.Duration
}

// Client talks to a Sendy installation.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a Sendy client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("sendy client: base url is required")
	}
	if config.APIKey == "" {
		return nil, errors.New("sendy client: api key is required")
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// APIError is a non-success response from the Sendy API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.StatusCode >= 400 {
		return fmt.Sprintf("sendy api http %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("sendy api error: %s", e.Body)
}

// Brand is a Sendy brand (a sending identity grouping lists).
type Brand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// List is a Sendy subscriber list.
type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("sendy request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return resp.StatusCode, "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return resp.StatusCode, strings.TrimSpace(string(body)), nil
}

// Brands lists all brands the API key can see. Entries without both an id
// and a name are skipped.
func (c *Client) Brands(ctx context.Context) ([]Brand, error) {
	_, body, err := c.postForm(ctx, "/api/brands/get-brands.php", url.Values{
		"api_key": {c.config.APIKey},
	})
	if err != nil {
		return nil, err
	}

	raw, err := decodeEntries(body)
	if err != nil {
		return nil, err
	}

	brands := make([]Brand, 0, len(raw))
	for _, b := range raw {
		if b["id"] == "" || b["name"] == "" {
			continue
		}
		brands = append(brands, Brand{ID: b["id"], Name: b["name"]})
	}
	sort.Slice(brands, func(i, j int) bool { return brands[i].ID < brands[j].ID })
	return brands, nil
}

// decodeEntries parses a Sendy listing response. Depending on version Sendy
// answers with either a JSON array or an object keyed by index, and with a
// plain-text error line for bad keys.
func decodeEntries(body string) ([]map[string]string, error) {
	var asList []map[string]string
	if err := json.Unmarshal([]byte(body), &asList); err == nil {
		return asList, nil
	}

	var asMap map[string]map[string]string
	if err := json.Unmarshal([]byte(body), &asMap); err != nil {
		return nil, &APIError{Body: body}
	}

	entries := make([]map[string]string, 0, len(asMap))
	for _, entry := range asMap {
		entries = append(entries, entry)
	}
	return entries, nil
}

// Lists returns the subscriber lists of a brand.
func (c *Client) Lists(ctx context.Context, brandID string) ([]List, error) {
	_, body, err := c.postForm(ctx, "/api/lists/get-lists.php", url.Values{
		"api_key":  {c.config.APIKey},
		"brand_id": {brandID},
	})
	if err != nil {
		return nil, err
	}

	raw, err := decodeEntries(body)
	if err != nil {
		return nil, err
	}

	lists := make([]List, 0, len(raw))
	for _, l := range raw {
		if l["id"] == "" || l["name"] == "" {
			continue
		}
		lists = append(lists, List{ID: l["id"], Name: l["name"]})
	}
	sort.Slice(lists, func(i, j int) bool { return lists[i].ID < lists[j].ID })
	return lists, nil
}

// SubscriberStatus returns Sendy's subscription status string for an email
// on a list, e.g. "Subscribed" or "Unsubscribed".
func (c *Client) SubscriberStatus(ctx context.Context, email, listID string) (string, error) {
	_, body, err := c.postForm(ctx, "/api/subscribers/subscription-status.php", url.Values{
		"api_key": {c.config.APIKey},
		"email":   {email},
		"list_id": {listID},
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

// Campaign describes a one-off email campaign sent to a single list.
type Campaign struct {
	FromName    string
	FromEmail   string
	ReplyTo     string
	Title       string
	Subject     string
	HTMLText    string
	PlainText   string
	QueryString string
	ListID      string
	TrackOpens  bool
	TrackClicks bool
}

// CreateCampaignResult reports an accepted campaign.
type CreateCampaignResult struct {
	Sending bool   // true when Sendy confirmed immediate dispatch
	Message string // raw Sendy response line
}

// CreateCampaign creates and sends a campaign. Sendy answers with a
// plain-text line rather than a status code, so acceptance is detected by
// substring match on the response body.
func (c *Client) CreateCampaign(ctx context.Context, campaign Campaign) (*CreateCampaignResult, error) {
	if campaign.Subject == "" {
		return nil, errors.New("sendy campaign: subject is required")
	}
	if campaign.ListID == "" {
		return nil, errors.New("sendy campaign: list id is required")
	}

	fromName := campaign.FromName
	if fromName == "" {
		fromName = c.config.FromName
	}
	fromEmail := campaign.FromEmail
	if fromEmail == "" {
		fromEmail = c.config.FromEmail
	}
	replyTo := campaign.ReplyTo
	if replyTo == "" {
		replyTo = fromEmail
	}
	title := campaign.Title
	if title == "" {
		title = campaign.Subject + " - " + time.Now().Format("2006-01-02 15:04:05")
	}

	form := url.Values{
		"api_key":       {c.config.APIKey},
		"from_name":     {fromName},
		"from_email":    {fromEmail},
		"reply_to":      {replyTo},
		"title":         {title},
		"subject":       {campaign.Subject},
		"html_text":     {campaign.HTMLText},
		"list_ids":      {campaign.ListID},
		"track_opens":   {boolFlag(campaign.TrackOpens)},
		"track_clicks":  {boolFlag(campaign.TrackClicks)},
		"send_campaign": {"1"},
	}
	if campaign.PlainText != "" {
		form.Set("plain_text", campaign.PlainText)
	}
	if campaign.QueryString != "" {
		form.Set("query_string", campaign.QueryString)
	}

	_, body, err := c.postForm(ctx, "/api/campaigns/create.php", form)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.Contains(body, responseCreatedAndSending):
		return &CreateCampaignResult{Sending: true, Message: body}, nil
	case strings.Contains(body, responseCreated):
		return &CreateCampaignResult{Sending: false, Message: body}, nil
	default:
		return nil, &APIError{Body: body}
	}
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Personalize substitutes subscriber markers in campaign content. Both
// bracket and brace forms are accepted because existing templates use
// either.
func Personalize(content, name, email string) string {
	replacer := strings.NewReplacer(
		"[name]", name,
		"[Name]", name,
		"[email]", email,
		"[Email]", email,
		"{name}", name,
		"{email}", email,
	)
	return replacer.Replace(content)
}
