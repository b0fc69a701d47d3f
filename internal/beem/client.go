// Package beem provides a client for the Beem ChatCore WhatsApp API.
package beem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

// Config holds Beem client configuration.
type Config struct {
	APIKey         string
	SecretKey      string
	SenderNumber   string        // WhatsApp sender address
	APIBaseURL     string        // ChatCore API base, e.g. https://apichatcore.beem.africa
	BroadcastURL   string        // broadcast send endpoint
	TemplateUserID string        // user id for template listing
	Timeout        time.Duration // request timeout, default 30s
	RateLimit      float64       // sends per second, 0 disables limiting
}

// Client talks to the Beem ChatCore API.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Beem client.
// Returns error if required credentials or endpoints are missing.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" || config.SecretKey == "" {
		return nil, errors.New("beem client: api key and secret key are required")
	}
	if config.APIBaseURL == "" {
		return nil, errors.New("beem client: api base url is required")
	}
	if config.BroadcastURL == "" {
		return nil, errors.New("beem client: broadcast url is required")
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: limiter,
	}, nil
}

// SendError is a typed delivery failure from the Beem API.
type SendError struct {
	StatusCode int
	Message    string
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("beem api error (http %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("beem api error: %s", e.Message)
}

// Template describes an approved WhatsApp message template.
type Template struct {
	ID           int      `json:"id"`
	TemplateID   string   `json:"template_id,omitempty"`
	Name         string   `json:"name"`
	Content      string   `json:"content"`
	Category     string   `json:"category"`
	Type         string   `json:"type"`
	Language     string   `json:"language"`
	Placeholders int      `json:"placeholders"`
	MediaURL     string   `json:"media_url,omitempty"`
	Buttons      []any    `json:"buttons,omitempty"`
}

// SendResult reports a successful broadcast submission.
type SendResult struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

var placeholderRe = regexp.MustCompile(`\{\{(\d+)\}\}`)

// Templates lists WhatsApp templates that are enabled and approved by the
// provider. Pending or rejected templates are filtered out because sends
// against them always fail.
func (c *Client) Templates(ctx context.Context) ([]Template, error) {
	endpoint := c.config.APIBaseURL + "/v1/message-templates?" + url.Values{
		"page":     {"1"},
		"user_id":  {c.config.TemplateUserID},
		"app_name": {"CHAT"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.config.APIKey, c.config.SecretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &SendError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var payload struct {
		Data []struct {
			ID         int    `json:"id"`
			TemplateID string `json:"template_id"`
			Name       string `json:"name"`
			Content    string `json:"content"`
			Category   string `json:"category"`
			Type       string `json:"type"`
			Language   string `json:"language"`
			Status     string `json:"status"`
			MediaURL   string `json:"mediaUrl"`
			Buttons    []any  `json:"buttons"`
			Metadata   []struct {
				Status struct {
					Approved bool `json:"approved"`
				} `json:"status"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode template list: %w", err)
	}

	templates := make([]Template, 0, len(payload.Data))
	for _, t := range payload.Data {
		approved := false
		for _, meta := range t.Metadata {
			if meta.Status.Approved {
				approved = true
				break
			}
		}
		if t.Status != "enabled" || !approved {
			continue
		}

		tmpl := Template{
			ID:         t.ID,
			TemplateID: t.TemplateID,
			Name:       t.Name,
			Content:    t.Content,
			Category:   t.Category,
			Type:       t.Type,
			Language:   t.Language,
			MediaURL:   t.MediaURL,
			Buttons:    t.Buttons,
		}
		if tmpl.Type == "" {
			tmpl.Type = "text"
		}
		if tmpl.Language == "" {
			tmpl.Language = "en"
		}

		seen := map[string]bool{}
		for _, m := range placeholderRe.FindAllStringSubmatch(t.Content, -1) {
			seen[m[1]] = true
		}
		tmpl.Placeholders = len(seen)

		templates = append(templates, tmpl)
	}

	return templates, nil
}

type broadcastDestination struct {
	PhoneNumber string   `json:"phoneNumber"`
	Params      []string `json:"params"`
}

type broadcastMessage struct {
	FromAddr        string                 `json:"from_addr"`
	DestinationAddr []broadcastDestination `json:"destination_addr"`
	Channel         string                 `json:"channel"`
	TemplateData    broadcastTemplate      `json:"messageTemplateData"`
}

type broadcastTemplate struct {
	ID int `json:"id"`
}

// SendTemplate attempts one template delivery to a phone number. The
// template identifier must be the numeric ChatCore template id.
func (c *Client) SendTemplate(ctx context.Context, phone, templateID string, params []string) (*SendResult, error) {
	id, err := strconv.Atoi(templateID)
	if err != nil {
		return nil, &SendError{Message: fmt.Sprintf("template id %q is not numeric", templateID)}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	if phone != "" && phone[0] != '+' {
		phone = "+" + phone
	}
	if params == nil {
		params = []string{}
	}

	reqBody := []broadcastMessage{{
		FromAddr: c.config.SenderNumber,
		DestinationAddr: []broadcastDestination{{
			PhoneNumber: phone,
			Params:      params,
		}},
		Channel:      "whatsapp",
		TemplateData: broadcastTemplate{ID: id},
	}}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal broadcast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BroadcastURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.config.APIKey, c.config.SecretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &SendError{Message: fmt.Sprintf("broadcast request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var payload struct {
		Message string `json:"message"`
		Errors  struct {
			Message string `json:"message"`
		} `json:"errors"`
		Data struct {
			Successful bool   `json:"successful"`
			JobID      string `json:"jobId"`
			Message    string `json:"message"`
		} `json:"data"`
	}
	// A non-JSON body still produces a usable error below.
	_ = json.Unmarshal(body, &payload)

	if resp.StatusCode >= 400 {
		msg := payload.Errors.Message
		if msg == "" {
			msg = payload.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("http error %d", resp.StatusCode)
		}
		return nil, &SendError{StatusCode: resp.StatusCode, Message: msg}
	}

	if !payload.Data.Successful {
		msg := payload.Data.Message
		if msg == "" {
			msg = payload.Message
		}
		if msg == "" {
			msg = "unknown broadcast failure"
		}
		return nil, &SendError{StatusCode: resp.StatusCode, Message: msg}
	}

	slog.Debug("whatsapp template sent",
		"template_id", id,
		"job_id", payload.Data.JobID,
	)

	result := &SendResult{
		JobID:   payload.Data.JobID,
		Message: payload.Data.Message,
	}
	if result.Message == "" {
		result.Message = "Message sent"
	}
	return result, nil
}
