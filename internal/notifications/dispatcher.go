package notifications

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

// Message is one in-app notification addressed to a single user.
type Message struct {
	UserID  uuid.UUID
	Type    enums.NotificationType
	Title   string
	Body    string
	Link    string
	Payload any
}

// Dispatcher stores in-app notifications. Every failure is coded
// NOTIFICATION_DISPATCH_FAILED so callers can log and move on.
type Dispatcher struct {
	repo notificationWriter
}

type notificationWriter interface {
	Create(ctx context.Context, n *models.Notification) error
}

// NewDispatcher builds a dispatcher over the notifications repository.
func NewDispatcher(repo notificationWriter) (*Dispatcher, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &Dispatcher{repo: repo}, nil
}

// Notify persists the message for the recipient.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) error {
	if msg.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeNotificationDispatch, "recipient required")
	}
	if !msg.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeNotificationDispatch, "invalid notification type")
	}

	notification := &models.Notification{
		UserID:  msg.UserID,
		Type:    msg.Type,
		Title:   msg.Title,
		Message: msg.Body,
	}
	if link := strings.TrimSpace(msg.Link); link != "" {
		notification.Link = &link
	}
	if msg.Payload != nil {
		raw, err := json.Marshal(msg.Payload)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeNotificationDispatch, err, "encode notification payload")
		}
		notification.Payload = raw
	}

	if err := d.repo.Create(ctx, notification); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNotificationDispatch, err, "store notification")
	}
	return nil
}
