package offers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/internal/notifications"
	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
)

// SweepResult summarizes one expiration pass.
type SweepResult struct {
	Expired        int `json:"expired"`
	Skipped        int `json:"skipped"`
	NotifiedBuyers int `json:"notified_buyers"`
}

// ExpireOverdue moves every pending offer whose expiry has passed to expired.
// Each offer is its own transaction; an offer that a buyer or seller moved
// first is skipped. Buyers get one notification per pass no matter how many
// of their offers expired. Running it again finds nothing to do.
func (s *service) ExpireOverdue(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()
	expiredByBuyer := map[uuid.UUID][]uuid.UUID{}
	buyerOrder := []uuid.UUID{}

	var errs error
	for {
		due, err := s.repo.ListDueForExpiry(ctx, now, s.policy.SweepBatchSize)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("list overdue offers: %w", err))
			break
		}

		var batchErrs error
		for i := range due {
			offer := due[i]
			expired, err := s.expireOne(ctx, &offer, now)
			if err != nil {
				batchErrs = multierr.Append(batchErrs, fmt.Errorf("expire offer %s: %w", offer.ID, err))
				continue
			}
			if !expired {
				result.Skipped++
				continue
			}
			result.Expired++
			if _, seen := expiredByBuyer[offer.BuyerID]; !seen {
				buyerOrder = append(buyerOrder, offer.BuyerID)
			}
			expiredByBuyer[offer.BuyerID] = append(expiredByBuyer[offer.BuyerID], offer.ID)
		}

		// failed rows stay pending and would be selected again
		if batchErrs != nil {
			errs = multierr.Append(errs, batchErrs)
			break
		}
		if len(due) < s.policy.SweepBatchSize {
			break
		}
	}

	s.metrics.AddTransitions(string(enums.OfferEventExpired), result.Expired)

	for _, buyerID := range buyerOrder {
		offerIDs := expiredByBuyer[buyerID]
		if s.notifier == nil {
			break
		}
		err := s.notifier.Notify(ctx, notifications.Message{
			UserID:  buyerID,
			Type:    enums.NotificationTypeOfferExpired,
			Title:   "Offers expired",
			Body:    expiredBody(len(offerIDs)),
			Link:    "/offers?status=expired",
			Payload: map[string]any{"offer_ids": offerIDs},
		})
		if err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"recipient_id": buyerID.String(),
				"error":        err.Error(),
			})
			s.logg.Warn(logCtx, "expiry notification failed")
			continue
		}
		result.NotifiedBuyers++
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"expired":         result.Expired,
		"skipped":         result.Skipped,
		"notified_buyers": result.NotifiedBuyers,
	})
	if errs != nil {
		s.logg.Error(logCtx, "offer expiration sweep incomplete", errs)
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "offer expiration sweep")
	}
	s.logg.Info(logCtx, "offer expiration sweep complete")
	return result, nil
}

func (s *service) expireOne(ctx context.Context, offer *models.Offer, now time.Time) (bool, error) {
	from := offer.Status
	expired := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Transition(ctx, offer.ID, transition{
			From:   enums.OfferStatusPending,
			To:     enums.OfferStatusExpired,
			Expiry: expiryPassed,
			At:     now,
		})
		if err != nil || !ok {
			return err
		}
		offer.Status = enums.OfferStatusExpired
		offer.UpdatedAt = now
		expired = true
		return s.record(ctx, tx, offer, &from, enums.OfferEventExpired, enums.EventOfferExpired, nil, "", now)
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}

func expiredBody(n int) string {
	if n == 1 {
		return "One of your offers expired. You can reopen it from your offers page."
	}
	return fmt.Sprintf("%d of your offers expired. You can reopen them from your offers page.", n)
}
