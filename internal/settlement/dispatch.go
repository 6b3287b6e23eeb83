package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/internal/email"
	"github.com/angelmondragon/tradepost-backend/internal/notifications"
	"github.com/angelmondragon/tradepost-backend/internal/users"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
)

const fallbackListingTitle = "your item"

// dispatch tells both parties about the sale. Every failure is logged and
// dropped; the transaction is already committed.
func (s *service) dispatch(ctx context.Context, txn *models.Transaction) {
	title := s.listingTitle(ctx, txn.ListingID)
	price := fmt.Sprintf("%s %s", money.Format(txn.FinalPrice), strings.ToUpper(txn.Currency))
	link := "/transactions/" + txn.ID.String()
	payload := map[string]any{
		"transaction_id": txn.ID,
		"listing_id":     txn.ListingID,
		"final_price":    txn.FinalPrice,
	}

	s.notify(ctx, notifications.Message{
		UserID:  txn.BuyerID,
		Type:    enums.NotificationTypePurchaseConfirmed,
		Title:   "Purchase confirmed",
		Body:    fmt.Sprintf("Your payment of %s for %s is held in escrow until %s.", price, title, txn.EscrowReleaseDate.Format("Jan 2, 2006")),
		Link:    link,
		Payload: payload,
	})
	s.notify(ctx, notifications.Message{
		UserID:  txn.SellerID,
		Type:    enums.NotificationTypeItemSold,
		Title:   "Item sold",
		Body:    fmt.Sprintf("%s sold for %s. You will receive %s %s.", title, price, money.Format(txn.SellerReceives), strings.ToUpper(txn.Currency)),
		Link:    link,
		Payload: payload,
	})

	s.sendEmails(ctx, txn, title)
}

func (s *service) notify(ctx context.Context, msg notifications.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"recipient_id":      msg.UserID.String(),
			"notification_type": string(msg.Type),
			"error":             err.Error(),
		})
		s.logg.Warn(logCtx, "settlement notification failed")
	}
}

func (s *service) sendEmails(ctx context.Context, txn *models.Transaction, title string) {
	if s.email == nil || s.users == nil {
		return
	}
	contacts, err := s.users.LookupMany(ctx, []uuid.UUID{txn.BuyerID, txn.SellerID})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "settlement email recipients unavailable")
		return
	}

	base := email.ConfirmationData{
		TransactionID:     txn.ID,
		ListingTitle:      title,
		FinalPrice:        txn.FinalPrice,
		PlatformFee:       txn.PlatformFee,
		SellerReceives:    txn.SellerReceives,
		Currency:          txn.Currency,
		EscrowReleaseDate: txn.EscrowReleaseDate,
	}
	s.sendTo(ctx, contacts[txn.BuyerID], txn.BuyerID, email.PartyBuyer, base)
	s.sendTo(ctx, contacts[txn.SellerID], txn.SellerID, email.PartySeller, base)
}

func (s *service) sendTo(ctx context.Context, contact *users.Contact, userID uuid.UUID, party email.Party, data email.ConfirmationData) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"recipient_id": userID.String(),
		"party":        string(party),
	})
	if contact == nil || strings.TrimSpace(contact.Email) == "" {
		s.logg.Warn(logCtx, "no email address for settlement confirmation")
		return
	}
	data.Party = party
	to := email.Recipient{Email: contact.Email, Name: contact.DisplayName}
	if err := s.email.SendConfirmation(ctx, to, data); err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "settlement confirmation email failed")
	}
}

func (s *service) listingTitle(ctx context.Context, listingID uuid.UUID) string {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil || strings.TrimSpace(listing.Title) == "" {
		return fallbackListingTitle
	}
	return listing.Title
}
