package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// EmailProvider delivers a plain-text email to one address.
type EmailProvider interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SendgridOptions configure the SendGrid provider.
type SendgridOptions struct {
	APIKey        string
	FromAddress   string
	FromName      string
	SubjectPrefix string
	Host          string
}

// SendgridProvider sends mail through the SendGrid v3 API.
type SendgridProvider struct {
	opts   SendgridOptions
	from   *sgmail.Email
	logger zerolog.Logger
}

// NewSendgridProvider builds the provider.
func NewSendgridProvider(opts SendgridOptions, logger zerolog.Logger) *SendgridProvider {
	if opts.Host == "" {
		opts.Host = sendgridHost
	}
	return &SendgridProvider{
		opts:   opts,
		from:   sgmail.NewEmail(opts.FromName, opts.FromAddress),
		logger: logger.With().Str("component", "email_sendgrid").Logger(),
	}
}

// SendEmail posts a single-recipient text/plain message.
func (p *SendgridProvider) SendEmail(ctx context.Context, to, subject, body string) error {
	msg := sgmail.NewSingleEmail(p.from, p.opts.SubjectPrefix+subject, sgmail.NewEmail("", to), body, "")

	req := sendgrid.GetRequest(p.opts.APIKey, sendgridEndpoint, p.opts.Host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(msg)

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("send email request: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body)
	}

	p.logger.Debug().Str("to", to).Int("status", res.StatusCode).Msg("email accepted by sendgrid")
	return nil
}

var _ EmailProvider = (*SendgridProvider)(nil)
