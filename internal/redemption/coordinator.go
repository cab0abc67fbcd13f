// Package redemption orchestrates one redemption attempt across the campaign
// ledger, the participant records and the code registry.
//
// When the store can run a transaction the whole attempt commits or rolls
// back as one unit. Otherwise every completed step is undone in reverse
// order when a later step fails, on a context that outlives the caller's.
package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/redemption/internal/event"
	"github.com/kkkkikiki/redemption/internal/idgen"
	"github.com/kkkkikiki/redemption/internal/ledger"
	"github.com/kkkkikiki/redemption/internal/metrics"
	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/registry"
	"github.com/kkkkikiki/redemption/internal/store"
	"github.com/kkkkikiki/redemption/internal/validation"
)

// Mode selects how an attempt is kept atomic
type Mode string

const (
	// ModeAuto uses a transaction when the store supports one
	ModeAuto Mode = "auto"
	// ModeTransaction requires a transactional store
	ModeTransaction Mode = "transaction"
	// ModeCompensation always undoes completed steps by hand
	ModeCompensation Mode = "compensation"
)

const defaultCompensationTimeout = 10 * time.Second

// Config tunes the coordinator
type Config struct {
	Mode                Mode
	CompensationTimeout time.Duration
}

// Coordinator runs redemption attempts and the administrative reversals
type Coordinator struct {
	store    store.Store
	tx       store.Transactor
	ledger   *ledger.Ledger
	registry *registry.Registry
	ids      idgen.Generator
	events   event.Publisher
	logger   *zap.Logger
	validate *validation.Validator
	now      func() time.Time

	compensationTimeout time.Duration
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithClock overrides the time source of the coordinator and its collaborators
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a coordinator over the store
func New(s store.Store, ids idgen.Generator, events event.Publisher, logger *zap.Logger, cfg Config, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		store:               s,
		ids:                 ids,
		events:              events,
		logger:              logger,
		validate:            validation.New(),
		now:                 time.Now,
		compensationTimeout: cfg.CompensationTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.compensationTimeout <= 0 {
		c.compensationTimeout = defaultCompensationTimeout
	}

	tx, transactional := s.(store.Transactor)
	switch cfg.Mode {
	case ModeAuto, "":
		if transactional {
			c.tx = tx
		}
	case ModeTransaction:
		if !transactional {
			return nil, fmt.Errorf("redemption mode %q requires a transactional store", cfg.Mode)
		}
		c.tx = tx
	case ModeCompensation:
	default:
		return nil, fmt.Errorf("unknown redemption mode %q", cfg.Mode)
	}

	c.ledger = ledger.New(s.Campaigns(), logger, ledger.WithClock(c.now))
	c.registry = registry.New(s, logger, registry.WithClock(c.now))
	return c, nil
}

// Transactional reports whether attempts run inside a storage transaction
func (c *Coordinator) Transactional() bool {
	return c.tx != nil
}

// Redeem validates the input and redeems the code for the participant.
// On failure every side effect of the attempt is undone; if undoing fails
// too, the returned error also matches model.ErrCompensationFailed.
func (c *Coordinator) Redeem(ctx context.Context, in Input) (*model.Participation, error) {
	start := time.Now()

	participation, err := c.redeem(ctx, in)

	outcome := "success"
	if err != nil {
		outcome = string(model.ReasonOf(err))
	}
	metrics.RecordRedemptionDuration(outcome, time.Since(start).Seconds())
	return participation, err
}

func (c *Coordinator) redeem(ctx context.Context, in Input) (*model.Participation, error) {
	in = in.Normalize()
	if err := validate(c.validate, in); err != nil {
		return nil, err
	}

	code, err := c.precheck(ctx, in)
	if err != nil {
		return nil, err
	}

	var participation *model.Participation
	subject := event.Event{CampaignID: code.CampaignID, CodeID: code.ID}
	err = c.execute(ctx, subject, func(s store.Store) []step {
		return c.redeemSteps(s, code, in, &participation)
	})
	if err != nil {
		c.logger.Info("redemption failed",
			zap.String("campaign_id", code.CampaignID),
			zap.String("code_id", code.ID),
			zap.String("reason", string(model.ReasonOf(err))),
			zap.Error(err))
		return nil, err
	}

	c.logger.Info("code redeemed",
		zap.String("campaign_id", code.CampaignID),
		zap.String("code_id", code.ID),
		zap.String("participation_id", participation.ID))
	c.events.Publish(ctx, event.Event{
		Type:            event.CodeRedeemed,
		CampaignID:      code.CampaignID,
		CodeID:          code.ID,
		ParticipationID: participation.ID,
	})
	return participation, nil
}

// precheck resolves the code and rejects attempts that cannot succeed.
// It reads without locking; the conditional writes decide the outcome.
func (c *Coordinator) precheck(ctx context.Context, in Input) (*model.Code, error) {
	now := c.now()

	var (
		code *model.Code
		err  error
	)
	if in.CodeID != "" {
		code, err = c.registry.Get(ctx, in.CodeID)
	} else {
		code, err = c.registry.LookupBySlug(ctx, in.CodeSlug)
	}
	if err != nil {
		return nil, err
	}
	if in.CodeSlug != "" && code.Slug != in.CodeSlug {
		return nil, model.NewError(model.ReasonNotFound, fmt.Sprintf("code %s does not match slug %q", code.ID, in.CodeSlug))
	}
	if code.CampaignID != in.CampaignID {
		return nil, model.NewError(model.ReasonNotFound, fmt.Sprintf("code %s does not belong to campaign %s", code.Slug, in.CampaignID))
	}
	if code.IsUsed {
		return nil, model.NewError(model.ReasonAlreadyUsed, fmt.Sprintf("code %s is already used", code.Slug))
	}
	referenced, err := c.registry.Referenced(ctx, code.ID)
	if err != nil {
		return nil, err
	}
	if referenced {
		return nil, model.NewError(model.ReasonAlreadyUsed, fmt.Sprintf("code %s already has a participation", code.Slug))
	}
	if code.IsExpired(now) {
		return nil, model.NewError(model.ReasonExpired, fmt.Sprintf("code %s has expired", code.Slug))
	}

	campaign, err := c.store.Campaigns().GetCampaign(ctx, in.CampaignID)
	if err != nil {
		return nil, err
	}
	switch campaign.Status(now) {
	case model.CampaignStatusInactive:
		return nil, model.NewError(model.ReasonInactive, fmt.Sprintf("campaign %s is not active", campaign.ID))
	case model.CampaignStatusExpired:
		return nil, model.NewError(model.ReasonExpired, fmt.Sprintf("campaign %s has expired", campaign.ID))
	case model.CampaignStatusDepleted:
		return nil, model.NewError(model.ReasonExhausted, fmt.Sprintf("campaign %s has no remaining uses", campaign.ID))
	}
	return code, nil
}

func (c *Coordinator) redeemSteps(s store.Store, code *model.Code, in Input, out **model.Participation) []step {
	led := c.ledger.With(s.Campaigns())
	reg := c.registry.With(s)
	now := c.now()

	participant := &model.Participant{
		ID:        c.ids.NewID(),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		CreatedAt: now,
	}
	participation := &model.Participation{
		ID:            c.ids.NewID(),
		ParticipantID: participant.ID,
		CampaignID:    code.CampaignID,
		CodeID:        code.ID,
		CreatedAt:     now,
	}

	return []step{
		{
			name: "reserve",
			do:   func(ctx context.Context) error { return led.Reserve(ctx, code.CampaignID) },
			undo: func(ctx context.Context) error { return led.Release(ctx, code.CampaignID) },
		},
		{
			name: "create_participant",
			do: func(ctx context.Context) error {
				if err := s.Participants().CreateParticipant(ctx, participant); err != nil {
					return fmt.Errorf("failed to create participant: %w", err)
				}
				return nil
			},
			undo: func(ctx context.Context) error { return s.Participants().DeleteParticipant(ctx, participant.ID) },
		},
		{
			name: "create_participation",
			do: func(ctx context.Context) error {
				if err := s.Participations().CreateParticipation(ctx, participation); err != nil {
					return fmt.Errorf("failed to create participation: %w", err)
				}
				return nil
			},
			undo: func(ctx context.Context) error { return s.Participations().DeleteParticipation(ctx, participation.ID) },
		},
		{
			name: "claim",
			do: func(ctx context.Context) error {
				if err := reg.Claim(ctx, code.ID); err != nil {
					return err
				}
				*out = participation
				return nil
			},
			undo:      func(ctx context.Context) error { return unclaimIfClaimed(ctx, reg, code.ID) },
			uncertain: true,
		},
	}
}

// unclaimIfClaimed undoes a claim whose outcome is unknown
func unclaimIfClaimed(ctx context.Context, reg *registry.Registry, codeID string) error {
	err := reg.Unclaim(ctx, codeID)
	if errors.Is(err, model.ErrNotRedeemed) {
		return nil
	}
	return err
}

// step is one forward action of an operation and the action undoing it
type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
	// uncertain steps may have applied even when do returned an unclassified
	// error, so their undo also runs for their own failure.
	uncertain bool
}

// execute runs the steps built for a store, atomically when transactions are
// in use and with reverse-order compensation otherwise.
func (c *Coordinator) execute(ctx context.Context, subject event.Event, build func(s store.Store) []step) error {
	if c.tx != nil {
		return c.tx.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			for _, st := range build(tx) {
				if err := st.do(ctx); err != nil {
					return err
				}
			}
			return nil
		})
	}

	steps := build(c.store)
	for i, st := range steps {
		if err := st.do(ctx); err != nil {
			done := steps[:i]
			if st.uncertain && model.ReasonOf(err) == model.ReasonInternal {
				done = steps[:i+1]
			}
			return c.compensate(ctx, subject, err, done)
		}
	}
	return nil
}

// compensate undoes the completed steps in reverse order. It keeps going
// past failed undos and reports them joined after the original cause.
func (c *Coordinator) compensate(ctx context.Context, subject event.Event, cause error, done []step) error {
	if len(done) == 0 {
		return cause
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.compensationTimeout)
	defer cancel()

	var failures []error
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if err := st.undo(ctx); err != nil {
			metrics.RecordCompensationFailure(st.name)
			c.logger.Error("compensation step failed",
				zap.String("step", st.name),
				zap.String("campaign_id", subject.CampaignID),
				zap.String("code_id", subject.CodeID),
				zap.String("participation_id", subject.ParticipationID),
				zap.Error(err))
			failures = append(failures, fmt.Errorf("undo %s: %w", st.name, err))
		}
	}
	if len(failures) == 0 {
		return cause
	}

	subject.Type = event.CompensationFailed
	subject.Reason = string(model.ReasonOf(cause))
	c.events.Publish(ctx, subject)

	return errors.Join(cause, model.WrapError(model.ReasonCompensationFailed,
		"state may have drifted until reconciliation", errors.Join(failures...)))
}
