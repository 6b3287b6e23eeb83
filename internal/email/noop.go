package email

import (
	"context"

	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

// NoopSender renders confirmations and logs them instead of sending.
type NoopSender struct {
	logg *logger.Logger
}

func NewNoopSender(logg *logger.Logger) *NoopSender {
	return &NoopSender{logg: logg}
}

func (n *NoopSender) SendConfirmation(ctx context.Context, to Recipient, data ConfirmationData) error {
	rendered, err := renderConfirmation(to, data)
	if err != nil {
		return err
	}
	if n.logg != nil {
		logCtx := n.logg.WithFields(ctx, map[string]any{
			"to":             to.Email,
			"subject":        rendered.Subject,
			"transaction_id": data.TransactionID.String(),
		})
		n.logg.Info(logCtx, "email delivery disabled; confirmation not sent")
	}
	return nil
}
