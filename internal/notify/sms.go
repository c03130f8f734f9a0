package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const smsSendPath = "/api/v2/sms/send"

// SMSProvider delivers one text message to a set of recipients.
type SMSProvider interface {
	SendSMS(ctx context.Context, recipients []string, message string) error
}

// HTTPSMSOptions parameterise the HTTP SMS gateway client.
type HTTPSMSOptions struct {
	BaseURL string
	APIKey  string
	Sender  string
	Timeout time.Duration
}

// HTTPSMSProvider posts messages to an Arkesel-compatible v2 SMS API.
type HTTPSMSProvider struct {
	opts   HTTPSMSOptions
	client *resty.Client
	logger zerolog.Logger
}

// NewHTTPSMSProvider builds the gateway client.
func NewHTTPSMSProvider(opts HTTPSMSOptions, logger zerolog.Logger) *HTTPSMSProvider {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("api-key", opts.APIKey).
		SetHeader("Accept", "application/json")

	return &HTTPSMSProvider{
		opts:   opts,
		client: client,
		logger: logger.With().Str("component", "sms_gateway").Logger(),
	}
}

type smsRequest struct {
	Sender     string   `json:"sender"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
}

type smsResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendSMS posts the message and succeeds only when the gateway answers code "ok".
func (p *HTTPSMSProvider) SendSMS(ctx context.Context, recipients []string, message string) error {
	if len(recipients) == 0 {
		return errors.New("sms: no recipients")
	}

	var result smsResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(smsRequest{Sender: p.opts.Sender, Message: message, Recipients: recipients}).
		SetResult(&result).
		SetError(&result).
		Post(smsSendPath)
	if err != nil {
		return fmt.Errorf("send sms request: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("sms gateway status %d: %s", resp.StatusCode(), describeSMSFailure(result, resp.String()))
	}
	if !strings.EqualFold(result.Code, "ok") {
		return fmt.Errorf("sms gateway rejected message: %s", describeSMSFailure(result, resp.String()))
	}

	p.logger.Debug().Int("recipients", len(recipients)).Msg("sms accepted by gateway")
	return nil
}

func describeSMSFailure(result smsResponse, raw string) string {
	switch {
	case result.Message != "":
		return fmt.Sprintf("%s (code %q)", result.Message, result.Code)
	case result.Code != "":
		return fmt.Sprintf("code %q", result.Code)
	case strings.TrimSpace(raw) != "":
		return strings.TrimSpace(raw)
	default:
		return "empty response"
	}
}

var _ SMSProvider = (*HTTPSMSProvider)(nil)
