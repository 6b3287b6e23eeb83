package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/tradepost-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendgridSender delivers email through the SendGrid v3 mail API.
type SendgridSender struct {
	client sendClient
	from   *mail.Email
	logg   *logger.Logger
}

// NewSendgridSender builds a sender from config.
func NewSendgridSender(cfg config.SendgridConfig, logg *logger.Logger) *SendgridSender {
	return newSendgridSender(sendgrid.NewSendClient(cfg.APIKey), cfg, logg)
}

func newSendgridSender(client sendClient, cfg config.SendgridConfig, logg *logger.Logger) *SendgridSender {
	return &SendgridSender{
		client: client,
		from:   mail.NewEmail(cfg.FromName, cfg.DefaultFrom),
		logg:   logg,
	}
}

// SendConfirmation renders and sends the purchase or sale confirmation.
func (s *SendgridSender) SendConfirmation(ctx context.Context, to Recipient, data ConfirmationData) error {
	if strings.TrimSpace(to.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeEmailSend, "recipient email required")
	}
	rendered, err := renderConfirmation(to, data)
	if err != nil {
		return err
	}

	msg := mail.NewSingleEmail(s.from, rendered.Subject, mail.NewEmail(to.Name, to.Email), rendered.Text, rendered.HTML)
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeEmailSend, err, "sendgrid request failed")
	}
	if resp == nil || resp.StatusCode >= 300 {
		status := 0
		body := ""
		if resp != nil {
			status = resp.StatusCode
			body = resp.Body
		}
		return pkgerrors.New(pkgerrors.CodeEmailSend, fmt.Sprintf("sendgrid rejected message (status %d)", status)).
			WithDetails(map[string]any{"status": status, "body": body})
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"transaction_id": data.TransactionID.String(),
			"party":          string(data.Party),
			"status":         resp.StatusCode,
		})
		s.logg.Info(logCtx, "confirmation email sent")
	}
	return nil
}
