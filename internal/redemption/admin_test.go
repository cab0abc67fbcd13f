package redemption

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/redemption/internal/event"
	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/store/memory"
)

func TestRevertAndRestore(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	seedCampaign(t, mem, 3, "AAAA2222")

	bus := event.NewBus()
	var types []event.Type
	bus.SubscribeAll(func(_ context.Context, e event.Event) { types = append(types, e.Type) })
	c := newCoordinator(t, mem, bus, ModeAuto)

	participation, err := c.Redeem(ctx, input("AAAA2222"))
	require.NoError(t, err)

	reverted, err := c.Revert(ctx, participation.ID)
	require.NoError(t, err)
	assert.False(t, reverted.IsUsed)
	assert.Nil(t, reverted.UsedAt)
	require.NotNil(t, reverted.RevertedAt)
	assert.True(t, reverted.RevertedAt.Equal(testNow))
	assert.True(t, reverted.Consumed(), "reverted participations keep their budget unit")

	got := snap(t, mem)
	assert.Equal(t, 2, got.remaining, "no refund")
	assert.Zero(t, got.usedCodes)

	_, err = c.Revert(ctx, participation.ID)
	assert.ErrorIs(t, err, model.ErrNotRedeemed)

	restored, err := c.Restore(ctx, participation.ID)
	require.NoError(t, err)
	assert.True(t, restored.IsUsed)
	assert.Nil(t, restored.RevertedAt)
	assert.Equal(t, snapshot{remaining: 2, participants: 1, participations: 1, usedCodes: 1}, snap(t, mem))

	_, err = c.Restore(ctx, participation.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyUsed)

	assert.Equal(t, []event.Type{event.CodeRedeemed, event.ParticipationReverted, event.ParticipationRestored}, types)
}

func TestRedeemRevertedCodeRejected(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	seedCampaign(t, mem, 3, "AAAA2222")
	c := newCoordinator(t, mem, event.Nop{}, ModeAuto)

	participation, err := c.Redeem(ctx, input("AAAA2222"))
	require.NoError(t, err)
	_, err = c.Revert(ctx, participation.ID)
	require.NoError(t, err)

	view, err := c.registry.Inspect(ctx, "AAAA2222")
	require.NoError(t, err)
	assert.Equal(t, model.CodeStateAlreadyUsed, view.State)

	before := snap(t, mem)
	_, err = c.Redeem(ctx, input("AAAA2222"))
	assert.ErrorIs(t, err, model.ErrAlreadyUsed)
	assert.Equal(t, before, snap(t, mem), "rejected before any budget is reserved")

	_, err = c.Restore(ctx, participation.ID)
	require.NoError(t, err)
}

func TestRevertUnknownParticipation(t *testing.T) {
	c := newCoordinator(t, memory.New(), event.Nop{}, ModeAuto)

	_, err := c.Revert(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = c.Restore(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRestoreRequiresReversal(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	seedCampaign(t, mem, 1, "AAAA2222")
	require.NoError(t, mem.Participants().CreateParticipant(ctx, &model.Participant{ID: "p1", FirstName: "Ece"}))
	require.NoError(t, mem.Participations().CreateParticipation(ctx, &model.Participation{
		ID: "orphan", ParticipantID: "p1", CampaignID: "c1", CodeID: "code-AAAA2222",
	}))
	c := newCoordinator(t, mem, event.Nop{}, ModeAuto)

	_, err := c.Restore(ctx, "orphan")
	assert.ErrorIs(t, err, model.ErrNotRedeemed)
	assert.Zero(t, snap(t, mem).usedCodes)
}

func TestRevertRollsBackUnclaimWhenStampFails(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	seedCampaign(t, mem, 2, "AAAA2222")

	c := newCoordinator(t, mem, event.Nop{}, ModeAuto)
	participation, err := c.Redeem(ctx, input("AAAA2222"))
	require.NoError(t, err)

	boom := errors.New("statement timeout")
	c = newCoordinator(t, &faultyStore{Store: mem, f: &faults{setReverted: boom}}, event.Nop{}, ModeAuto)

	_, err = c.Revert(ctx, participation.ID)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, model.ErrCompensationFailed)

	view, err := mem.Participations().GetParticipation(ctx, participation.ID)
	require.NoError(t, err)
	assert.True(t, view.IsUsed, "code claimed again")
	assert.Nil(t, view.RevertedAt)
}
