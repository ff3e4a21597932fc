// Package sms delivers one-time verification codes.
//
// HTTPSender posts to a JSON SMS gateway; LogSender only logs the message
// and is the development default when no gateway is configured.
package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/summerjobs-backend/internal/config"
)

// ErrDelivery is returned when the gateway rejects or fails a send.
var ErrDelivery = errors.New("sms delivery failed")

// Sender sends a text message to an E.164 phone number.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// New picks HTTPSender when a gateway URL is configured, LogSender otherwise.
func New(cfg config.SMSConfig) Sender {
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		return LogSender{}
	}
	return NewHTTPSender(cfg.GatewayURL, cfg.APIKey, cfg.From, cfg.Timeout)
}

// HTTPSender posts {"to","from","body"} to a gateway with a bearer API key.
type HTTPSender struct {
	client *resty.Client
	url    string
	from   string
}

// NewHTTPSender builds a resty-backed sender.
func NewHTTPSender(url, apiKey, from string, timeout time.Duration) *HTTPSender {
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &HTTPSender{client: c, url: url, from: from}
}

type gatewayMessage struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

// Send delivers body to the gateway. Non-2xx responses map to ErrDelivery.
func (s *HTTPSender) Send(ctx context.Context, to, body string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(gatewayMessage{To: to, From: s.from, Body: body}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: gateway status %d", ErrDelivery, resp.StatusCode())
	}
	return nil
}

// LogSender writes messages to the structured log instead of sending them.
type LogSender struct{}

// Send logs the recipient and message.
func (LogSender) Send(_ context.Context, to, body string) error {
	log.Info().Str("to", to).Str("body", body).Msg("sms (log sender)")
	return nil
}
