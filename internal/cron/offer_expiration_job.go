package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tradepost-backend/internal/offers"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

// OfferExpirationJobParams configure the offer expiration sweep.
type OfferExpirationJobParams struct {
	Logger  *logger.Logger
	Sweeper offerSweeper
}

type offerSweeper interface {
	ExpireOverdue(ctx context.Context) (offers.SweepResult, error)
}

// NewOfferExpirationJob builds the cron job that expires overdue pending offers.
func NewOfferExpirationJob(params OfferExpirationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("offer sweeper required")
	}
	return &offerExpirationJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
	}, nil
}

type offerExpirationJob struct {
	logg    *logger.Logger
	sweeper offerSweeper
}

func (j *offerExpirationJob) Name() string { return "offer-expiration" }

func (j *offerExpirationJob) Run(ctx context.Context) error {
	result, err := j.sweeper.ExpireOverdue(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"offers_expired":  result.Expired,
		"offers_skipped":  result.Skipped,
		"buyers_notified": result.NotifiedBuyers,
	})
	if err != nil {
		return fmt.Errorf("offer expiration: %w", err)
	}
	j.logg.Info(logCtx, "offer expiration sweep finished")
	return nil
}
