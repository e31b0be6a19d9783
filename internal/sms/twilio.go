package sms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/notify"
)

const DefaultBaseURL = "https://api.twilio.com"

var ErrNotConfigured = errors.New("sms client not configured: missing account credentials")

// Client sends text messages through the Twilio Messages API.
type Client struct {
	accountSID string
	authToken  string
	from       string
	http       *resty.Client
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.http.SetBaseURL(url)
		}
	}
}

func NewClient(accountSID, authToken, from string, opts ...Option) *Client {
	c := &Client{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetTimeout(15 * time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Configured() bool {
	return c.accountSID != "" && c.authToken != "" && c.from != ""
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send texts the message subject and body to the recipient's phone.
func (c *Client) Send(ctx context.Context, to model.Recipient, msg notify.Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if to.Phone == "" {
		return fmt.Errorf("member %d has no phone number", to.MemberID)
	}

	var apiErr twilioError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.accountSID, c.authToken).
		SetFormData(map[string]string{
			"From": c.from,
			"To":   to.Phone,
			"Body": msg.Subject + "\n" + msg.Body,
		}).
		SetError(&apiErr).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.accountSID))
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return fmt.Errorf("twilio API error: status %d: %s", resp.StatusCode(), apiErr.Message)
		}
		return fmt.Errorf("twilio API error: status %d", resp.StatusCode())
	}
	return nil
}
