package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/notify"
)

const DefaultBaseURL = "https://api.postmarkapp.com"

var ErrNotConfigured = errors.New("email client not configured: missing server token")

// Client sends chore notifications through Postmark.
type Client struct {
	serverToken string
	fromEmail   string
	http        *resty.Client
}

type Option func(*Client)

// WithBaseURL points the client at a different Postmark-compatible API.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.http.SetBaseURL(url)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetTimeout(15 * time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

type postmarkError struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// Send delivers msg to the recipient's email address.
func (c *Client) Send(ctx context.Context, to model.Recipient, msg notify.Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if to.Email == "" {
		return fmt.Errorf("member %d has no email address", to.MemberID)
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       to.Email,
		Subject:  msg.Subject,
		TextBody: msg.Body,
		HtmlBody: "<p>" + html.EscapeString(msg.Body) + "</p>",
		Tag:      msg.Tag,
	}

	var apiErr postmarkError
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Postmark-Server-Token", c.serverToken).
		SetBody(&payload).
		SetError(&apiErr).
		Post("/email")
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return fmt.Errorf("postmark API error: status %d: %s", resp.StatusCode(), apiErr.Message)
		}
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode())
	}
	return nil
}
