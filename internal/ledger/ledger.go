// Package ledger guards each campaign's usage budget.
//
// Reserve and Release are single conditional writes at the storage layer, so
// they stay correct when attempts for the same campaign run concurrently in
// different processes. Reads happen only after a refused write, to explain
// why it was refused.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/redemption/internal/metrics"
	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/store"
)

// ErrReleaseRefused is returned when a release would push remaining_uses above total_uses
var ErrReleaseRefused = errors.New("release refused: remaining uses already at total")

// Ledger reserves and releases units of campaign budget
type Ledger struct {
	campaigns store.Campaigns
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger over the campaign store
func New(campaigns store.Campaigns, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		campaigns: campaigns,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// With returns a copy of the ledger bound to another campaign store, typically a transaction
func (l *Ledger) With(campaigns store.Campaigns) *Ledger {
	cp := *l
	cp.campaigns = campaigns
	return &cp
}

// Reserve takes one unit of budget from an active campaign.
// It fails with NotFound, Inactive, Expired or Exhausted.
func (l *Ledger) Reserve(ctx context.Context, campaignID string) error {
	now := l.now()

	ok, err := l.campaigns.DecrementRemaining(ctx, campaignID, now)
	if err != nil {
		metrics.RecordReservation("error")
		return fmt.Errorf("failed to reserve campaign %s: %w", campaignID, err)
	}
	if ok {
		metrics.RecordReservation("success")
		return nil
	}

	err = l.refusal(ctx, campaignID, now)
	metrics.RecordReservation(string(model.ReasonOf(err)))
	l.logger.Debug("reservation refused",
		zap.String("campaign_id", campaignID),
		zap.Error(err))
	return err
}

// refusal explains why the conditional decrement did not apply
func (l *Ledger) refusal(ctx context.Context, campaignID string, now time.Time) error {
	campaign, err := l.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	switch campaign.Status(now) {
	case model.CampaignStatusInactive:
		return model.NewError(model.ReasonInactive, fmt.Sprintf("campaign %s is not active", campaignID))
	case model.CampaignStatusExpired:
		return model.NewError(model.ReasonExpired, fmt.Sprintf("campaign %s expired at %s",
			campaignID, campaign.ExpiryDate.Format(time.RFC3339)))
	default:
		// Depleted, or a release landed between the refused write and this read:
		// the budget was empty when the write was evaluated.
		return model.NewError(model.ReasonExhausted, fmt.Sprintf("campaign %s has no remaining uses", campaignID))
	}
}

// Release gives back a unit taken by a Reserve whose attempt did not complete
func (l *Ledger) Release(ctx context.Context, campaignID string) error {
	ok, err := l.campaigns.IncrementRemaining(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to release campaign %s: %w", campaignID, err)
	}
	if ok {
		return nil
	}

	if _, err := l.campaigns.GetCampaign(ctx, campaignID); err != nil {
		return err
	}
	l.logger.Warn("release refused",
		zap.String("campaign_id", campaignID))
	return fmt.Errorf("campaign %s: %w", campaignID, ErrReleaseRefused)
}
