// Package reconcile detects and repairs drift between each campaign's
// remaining_uses and the participations that consumed it.
//
// Drift only appears when a process dies mid-attempt or a compensation step
// fails. Audit is read-only and safe at any time. Repair locks the campaign
// row on transactional stores, so a reservation against the same row waits
// until the repair commits. Attempts that reserved earlier but have not
// claimed their code yet are counted as in flight while inside the grace
// period. On stores without transactions a repair still races live attempts.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/redemption/internal/event"
	"github.com/kkkkikiki/redemption/internal/metrics"
	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/store"
)

// CampaignDrift is the audit result of one campaign
type CampaignDrift struct {
	CampaignID    string `json:"campaign_id"`
	Name          string `json:"name"`
	TotalUses     int    `json:"total_uses"`
	RemainingUses int    `json:"remaining_uses"`
	Consumed      int    `json:"consumed"`
	// InFlight are participations inside the grace period whose code is not claimed yet.
	InFlight int `json:"in_flight"`
	// Drift is remaining_uses minus (total_uses - consumed - in_flight); negative means budget was lost.
	Drift int `json:"drift"`
	// Orphans are participations past the grace period whose code is unused and never reverted.
	Orphans int `json:"orphans"`
	// StrayClaims are used codes that no participation references.
	StrayClaims int `json:"stray_claims"`
}

// Clean reports whether the campaign satisfies every invariant
func (d CampaignDrift) Clean() bool {
	return d.Drift == 0 && d.Orphans == 0 && d.StrayClaims == 0
}

// Report is the outcome of an audit or repair run
type Report struct {
	Campaigns []CampaignDrift `json:"campaigns"`
	Repaired  bool            `json:"repaired"`
}

// Dirty returns the campaigns that need repair
func (r *Report) Dirty() []CampaignDrift {
	var out []CampaignDrift
	for _, c := range r.Campaigns {
		if !c.Clean() {
			out = append(out, c)
		}
	}
	return out
}

// Reconciler audits and repairs campaign budgets
type Reconciler struct {
	store  store.Store
	events event.Publisher
	logger *zap.Logger
	grace  time.Duration
	now    func() time.Time
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a reconciler. Participations younger than grace are never
// treated as orphans, so attempts still in flight are left alone.
func New(s store.Store, events event.Publisher, logger *zap.Logger, grace time.Duration, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  s,
		events: events,
		logger: logger,
		grace:  grace,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Audit reports drift for one campaign, or for all when campaignID is empty
func (r *Reconciler) Audit(ctx context.Context, campaignID string) (*Report, error) {
	campaigns, err := r.campaigns(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	report := &Report{Campaigns: make([]CampaignDrift, 0, len(campaigns))}
	for i := range campaigns {
		d, err := r.audit(ctx, r.store, &campaigns[i])
		if err != nil {
			return nil, err
		}
		metrics.SetLedgerDrift(d.CampaignID, d.Drift)
		report.Campaigns = append(report.Campaigns, *d)
	}
	return report, nil
}

// Repair deletes orphan participations with their participants, unclaims
// stray codes and rewrites remaining_uses as total_uses minus consumed and
// in-flight participations.
func (r *Reconciler) Repair(ctx context.Context, campaignID string) (*Report, error) {
	campaigns, err := r.campaigns(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	report := &Report{Campaigns: make([]CampaignDrift, 0, len(campaigns)), Repaired: true}
	for i := range campaigns {
		var before *CampaignDrift
		repair := func(ctx context.Context, st store.Store) error {
			var err error
			before, err = r.repair(ctx, st, campaigns[i].ID)
			return err
		}

		if tx, ok := r.store.(store.Transactor); ok {
			err = tx.WithinTx(ctx, repair)
		} else {
			err = repair(ctx, r.store)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to repair campaign %s: %w", campaigns[i].ID, err)
		}

		metrics.SetLedgerDrift(before.CampaignID, 0)
		report.Campaigns = append(report.Campaigns, *before)
		if before.Clean() {
			continue
		}

		r.logger.Warn("campaign repaired",
			zap.String("campaign_id", before.CampaignID),
			zap.Int("drift", before.Drift),
			zap.Int("orphans", before.Orphans),
			zap.Int("stray_claims", before.StrayClaims))
		r.events.Publish(ctx, event.Event{
			Type:       event.LedgerRepaired,
			CampaignID: before.CampaignID,
			Count:      before.Drift,
		})
	}
	return report, nil
}

// repair fixes one campaign and returns the drift found before fixing it
func (r *Reconciler) repair(ctx context.Context, st store.Store, campaignID string) (*CampaignDrift, error) {
	campaign, err := st.Campaigns().GetCampaignForUpdate(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	before, err := r.audit(ctx, st, campaign)
	if err != nil {
		return nil, err
	}
	if before.Clean() {
		return before, nil
	}

	orphans, err := st.Participations().ListOrphans(ctx, campaignID, r.now().Add(-r.grace))
	if err != nil {
		return nil, fmt.Errorf("failed to list orphans: %w", err)
	}
	for _, p := range orphans {
		if err := st.Participations().DeleteParticipation(ctx, p.ID); err != nil {
			return nil, fmt.Errorf("failed to delete orphan participation %s: %w", p.ID, err)
		}
		if err := st.Participants().DeleteParticipant(ctx, p.ParticipantID); err != nil {
			return nil, fmt.Errorf("failed to delete orphan participant %s: %w", p.ParticipantID, err)
		}
	}

	participations, err := st.Participations().ListParticipations(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participations: %w", err)
	}
	stray, err := strayClaims(ctx, st, campaignID, participations)
	if err != nil {
		return nil, err
	}
	for _, codeID := range stray {
		if _, err := st.Codes().UnclaimCode(ctx, codeID); err != nil {
			return nil, fmt.Errorf("failed to unclaim stray code %s: %w", codeID, err)
		}
	}

	if err := st.Campaigns().SetRemaining(ctx, campaignID, campaign.TotalUses-before.Consumed-before.InFlight); err != nil {
		return nil, fmt.Errorf("failed to set remaining uses: %w", err)
	}
	return before, nil
}

func (r *Reconciler) campaigns(ctx context.Context, campaignID string) ([]model.Campaign, error) {
	if campaignID == "" {
		return r.store.Campaigns().ListCampaigns(ctx)
	}
	c, err := r.store.Campaigns().GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return []model.Campaign{*c}, nil
}

func (r *Reconciler) audit(ctx context.Context, st store.Store, c *model.Campaign) (*CampaignDrift, error) {
	usage, err := st.Participations().UsageByCampaign(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate participations: %w", err)
	}
	var consumed int
	for _, u := range usage {
		if u.CampaignID == c.ID {
			consumed = u.Consumed()
			break
		}
	}

	cutoff := r.now().Add(-r.grace)
	orphans, err := st.Participations().ListOrphans(ctx, c.ID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphans: %w", err)
	}
	participations, err := st.Participations().ListParticipations(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participations: %w", err)
	}
	stray, err := strayClaims(ctx, st, c.ID, participations)
	if err != nil {
		return nil, err
	}

	// an attempt inside the grace period has reserved budget but not claimed yet
	var inFlight int
	for _, p := range participations {
		if !p.IsUsed && p.RevertedAt == nil && !p.CreatedAt.Before(cutoff) {
			inFlight++
		}
	}

	return &CampaignDrift{
		CampaignID:    c.ID,
		Name:          c.Name,
		TotalUses:     c.TotalUses,
		RemainingUses: c.RemainingUses,
		Consumed:      consumed,
		InFlight:      inFlight,
		Drift:         c.RemainingUses - (c.TotalUses - consumed - inFlight),
		Orphans:       len(orphans),
		StrayClaims:   len(stray),
	}, nil
}

// strayClaims lists used codes of the campaign that no participation references
func strayClaims(ctx context.Context, st store.Store, campaignID string, participations []model.ParticipationView) ([]string, error) {
	used, err := st.Codes().ListCodes(ctx, campaignID, model.CodeFilterUsed)
	if err != nil {
		return nil, fmt.Errorf("failed to list used codes: %w", err)
	}
	if len(used) == 0 {
		return nil, nil
	}
	referenced := make(map[string]bool, len(participations))
	for _, p := range participations {
		referenced[p.CodeID] = true
	}

	var stray []string
	for _, c := range used {
		if !referenced[c.ID] {
			stray = append(stray, c.ID)
		}
	}
	return stray, nil
}
