package redemption

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kkkkikiki/redemption/internal/event"
	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/store"
)

// Revert returns a redeemed participation's code to the unused state and
// stamps the participation as reverted. The campaign budget is not refunded.
func (c *Coordinator) Revert(ctx context.Context, participationID string) (*model.ParticipationView, error) {
	view, err := c.store.Participations().GetParticipation(ctx, participationID)
	if err != nil {
		return nil, err
	}
	if !view.IsUsed {
		return nil, model.NewError(model.ReasonNotRedeemed, fmt.Sprintf("participation %s is not redeemed", participationID))
	}

	subject := event.Event{CampaignID: view.CampaignID, CodeID: view.CodeID, ParticipationID: view.ID}
	err = c.execute(ctx, subject, func(s store.Store) []step {
		reg := c.registry.With(s)
		return []step{
			{
				name: "unclaim",
				do:   func(ctx context.Context) error { return reg.Unclaim(ctx, view.CodeID) },
				undo: func(ctx context.Context) error { return reg.Claim(ctx, view.CodeID) },
			},
			{
				name: "mark_reverted",
				do: func(ctx context.Context) error {
					now := c.now()
					return s.Participations().SetReverted(ctx, view.ID, &now)
				},
			},
		}
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("participation reverted",
		zap.String("participation_id", view.ID),
		zap.String("code_id", view.CodeID))
	c.events.Publish(ctx, event.Event{
		Type:            event.ParticipationReverted,
		CampaignID:      view.CampaignID,
		CodeID:          view.CodeID,
		ParticipationID: view.ID,
	})
	return c.store.Participations().GetParticipation(ctx, participationID)
}

// Restore marks a reverted participation as used again. The campaign budget
// is not charged a second time since the reversal kept its unit.
func (c *Coordinator) Restore(ctx context.Context, participationID string) (*model.ParticipationView, error) {
	view, err := c.store.Participations().GetParticipation(ctx, participationID)
	if err != nil {
		return nil, err
	}
	if view.IsUsed {
		return nil, model.NewError(model.ReasonAlreadyUsed, fmt.Sprintf("participation %s is already used", participationID))
	}
	if view.RevertedAt == nil {
		return nil, model.NewError(model.ReasonNotRedeemed, fmt.Sprintf("participation %s was never reverted", participationID))
	}

	subject := event.Event{CampaignID: view.CampaignID, CodeID: view.CodeID, ParticipationID: view.ID}
	err = c.execute(ctx, subject, func(s store.Store) []step {
		reg := c.registry.With(s)
		return []step{
			{
				name: "claim",
				do:   func(ctx context.Context) error { return reg.Claim(ctx, view.CodeID) },
				undo: func(ctx context.Context) error { return unclaimIfClaimed(ctx, reg, view.CodeID) },
			},
			{
				name: "clear_reverted",
				do:   func(ctx context.Context) error { return s.Participations().SetReverted(ctx, view.ID, nil) },
			},
		}
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("participation restored",
		zap.String("participation_id", view.ID),
		zap.String("code_id", view.CodeID))
	c.events.Publish(ctx, event.Event{
		Type:            event.ParticipationRestored,
		CampaignID:      view.CampaignID,
		CodeID:          view.CodeID,
		ParticipationID: view.ID,
	})
	return c.store.Participations().GetParticipation(ctx, participationID)
}
