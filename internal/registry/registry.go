// Package registry owns the one-time-use flag and the expiry of issued codes.
package registry

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

// CodeView is what the public landing page needs to know about a scanned code
type CodeView struct {
	State    model.CodeState
	Code     *model.Code
	Campaign *model.Campaign
}

// Registry claims and releases codes
type Registry struct {
	codes          store.Codes
	campaigns      store.Campaigns
	participations store.Participations
	logger         *zap.Logger
	now            func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates a registry over the codes, campaigns and participations of a store
func New(s store.Store, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		codes:          s.Codes(),
		campaigns:      s.Campaigns(),
		participations: s.Participations(),
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// With returns a copy of the registry bound to another store, typically a transaction
func (r *Registry) With(s store.Store) *Registry {
	cp := *r
	cp.codes = s.Codes()
	cp.campaigns = s.Campaigns()
	cp.participations = s.Participations()
	return &cp
}

// Claim marks an unused, unexpired code as used.
// It fails with NotFound, AlreadyUsed or Expired.
func (r *Registry) Claim(ctx context.Context, codeID string) error {
	now := r.now()

	ok, err := r.codes.ClaimCode(ctx, codeID, now)
	if err != nil {
		metrics.RecordClaim("error")
		return fmt.Errorf("failed to claim code %s: %w", codeID, err)
	}
	if ok {
		metrics.RecordClaim("success")
		return nil
	}

	code, err := r.codes.GetCode(ctx, codeID)
	if err == nil {
		switch {
		case code.IsUsed:
			err = model.NewError(model.ReasonAlreadyUsed, fmt.Sprintf("code %s is already used", code.Slug))
		default:
			// unused and refused: the expiry predicate failed
			err = model.NewError(model.ReasonExpired, fmt.Sprintf("code %s expired at %s",
				code.Slug, code.ExpiresAt.Format(time.RFC3339)))
		}
	}
	metrics.RecordClaim(string(model.ReasonOf(err)))
	return err
}

// Unclaim returns a used code to the unused state.
// It fails with NotFound or NotRedeemed.
func (r *Registry) Unclaim(ctx context.Context, codeID string) error {
	ok, err := r.codes.UnclaimCode(ctx, codeID)
	if err != nil {
		return fmt.Errorf("failed to unclaim code %s: %w", codeID, err)
	}
	if ok {
		return nil
	}

	code, err := r.codes.GetCode(ctx, codeID)
	if err != nil {
		return err
	}
	return model.NewError(model.ReasonNotRedeemed, fmt.Sprintf("code %s is not used", code.Slug))
}

// Get fetches a code by id
func (r *Registry) Get(ctx context.Context, codeID string) (*model.Code, error) {
	return r.codes.GetCode(ctx, codeID)
}

// LookupBySlug fetches a code by its public slug
func (r *Registry) LookupBySlug(ctx context.Context, slug string) (*model.Code, error) {
	return r.codes.GetCodeBySlug(ctx, slug)
}

// Referenced reports whether a participation holds the code. A reverted
// participation keeps its code, so an unused code may still be spent.
func (r *Registry) Referenced(ctx context.Context, codeID string) (bool, error) {
	_, err := r.participations.GetParticipationByCode(ctx, codeID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, model.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to look up participation of code %s: %w", codeID, err)
	}
}

// Inspect resolves the landing state of a slug. Unknown slugs are reported
// as CodeStateNotFound rather than as an error.
func (r *Registry) Inspect(ctx context.Context, slug string) (*CodeView, error) {
	now := r.now()

	code, err := r.codes.GetCodeBySlug(ctx, slug)
	if errors.Is(err, model.ErrNotFound) {
		return &CodeView{State: model.CodeStateNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	campaign, err := r.campaigns.GetCampaign(ctx, code.CampaignID)
	if errors.Is(err, model.ErrNotFound) {
		r.logger.Warn("code references a missing campaign",
			zap.String("code_id", code.ID),
			zap.String("campaign_id", code.CampaignID))
		return &CodeView{State: model.CodeStateNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	used := code.IsUsed
	if !used {
		if used, err = r.Referenced(ctx, code.ID); err != nil {
			return nil, err
		}
	}

	view := &CodeView{Code: code, Campaign: campaign}
	switch {
	case used:
		view.State = model.CodeStateAlreadyUsed
	case code.IsExpired(now):
		view.State = model.CodeStateExpired
	case !campaign.IsActive(now):
		view.State = model.CodeStateCampaignInactive
	default:
		view.State = model.CodeStateValid
	}
	return view, nil
}
