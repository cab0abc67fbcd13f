package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/store/memory"
)

type fixture struct {
	store *memory.Store
	reg   *Registry
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s := memory.New()

	require.NoError(t, s.Campaigns().CreateCampaign(ctx, &model.Campaign{
		ID: "c1", Name: "Flat White", DiscountRate: 25,
		TotalUses: 3, RemainingUses: 3,
		ExpiryDate: now.Add(48 * time.Hour), State: model.CampaignStateActive,
	}))
	require.NoError(t, s.Campaigns().CreateCampaign(ctx, &model.Campaign{
		ID: "c2", Name: "Paused", DiscountRate: 10,
		TotalUses: 1, RemainingUses: 1,
		ExpiryDate: now.Add(48 * time.Hour), State: model.CampaignStateInactive,
	}))
	_, err := s.Codes().InsertCodes(ctx, []model.Code{
		{ID: "k1", CampaignID: "c1", Slug: "AAAA2222", ExpiresAt: now.Add(48 * time.Hour)},
		{ID: "k2", CampaignID: "c1", Slug: "BBBB3333", ExpiresAt: now.Add(-time.Minute)},
		{ID: "k3", CampaignID: "c2", Slug: "CCCC4444", ExpiresAt: now.Add(48 * time.Hour)},
	})
	require.NoError(t, err)

	return &fixture{
		store: s,
		reg:   New(s, zap.NewNop(), WithClock(func() time.Time { return now })),
		now:   now,
	}
}

func TestClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.reg.Claim(ctx, "k1"))

	code, err := f.reg.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, code.IsUsed)
	require.NotNil(t, code.UsedAt)
	assert.True(t, code.UsedAt.Equal(f.now))

	assert.ErrorIs(t, f.reg.Claim(ctx, "k1"), model.ErrAlreadyUsed)
	assert.ErrorIs(t, f.reg.Claim(ctx, "k2"), model.ErrExpired)
	assert.ErrorIs(t, f.reg.Claim(ctx, "nope"), model.ErrNotFound)
}

// Of many concurrent claims of the same code exactly one succeeds.
func TestClaimConcurrentAtMostOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wins, used atomic.Int64
		wg         sync.WaitGroup
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.reg.Claim(ctx, "k1")
			if err == nil {
				wins.Add(1)
			} else if model.ReasonOf(err) == model.ReasonAlreadyUsed {
				used.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
	assert.Equal(t, int64(63), used.Load())
}

func TestUnclaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.reg.Unclaim(ctx, "k1"), model.ErrNotRedeemed)
	assert.ErrorIs(t, f.reg.Unclaim(ctx, "nope"), model.ErrNotFound)

	require.NoError(t, f.reg.Claim(ctx, "k1"))
	require.NoError(t, f.reg.Unclaim(ctx, "k1"))

	code, err := f.reg.LookupBySlug(ctx, "AAAA2222")
	require.NoError(t, err)
	assert.False(t, code.IsUsed)
	assert.Nil(t, code.UsedAt)
}

func TestInspect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Campaigns().CreateCampaign(ctx, &model.Campaign{
		ID: "c3", Name: "Empty", TotalUses: 1, RemainingUses: 0,
		ExpiryDate: f.now.Add(time.Hour), State: model.CampaignStateActive,
	}))
	_, err := f.store.Codes().InsertCodes(ctx, []model.Code{
		{ID: "k4", CampaignID: "c3", Slug: "DDDD5555", ExpiresAt: f.now.Add(time.Hour)},
		{ID: "k5", CampaignID: "c1", Slug: "EEEE6666", ExpiresAt: f.now.Add(time.Hour)},
	})
	require.NoError(t, err)
	require.NoError(t, f.reg.Claim(ctx, "k5"))

	testCases := []struct {
		slug string
		want model.CodeState
	}{
		{slug: "AAAA2222", want: model.CodeStateValid},
		{slug: "EEEE6666", want: model.CodeStateAlreadyUsed},
		{slug: "BBBB3333", want: model.CodeStateExpired},
		{slug: "CCCC4444", want: model.CodeStateCampaignInactive},
		{slug: "DDDD5555", want: model.CodeStateCampaignInactive},
		{slug: "ZZZZ9999", want: model.CodeStateNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.slug, func(t *testing.T) {
			view, err := f.reg.Inspect(ctx, tc.slug)
			require.NoError(t, err)
			assert.Equal(t, tc.want, view.State)
			if tc.want != model.CodeStateNotFound {
				require.NotNil(t, view.Campaign)
				assert.Equal(t, view.Code.CampaignID, view.Campaign.ID)
			}
		})
	}
}

func TestInspectReferencedCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	referenced, err := f.reg.Referenced(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, referenced)

	require.NoError(t, f.store.Participants().CreateParticipant(ctx, &model.Participant{ID: "p1", FirstName: "Ece"}))
	require.NoError(t, f.store.Participations().CreateParticipation(ctx, &model.Participation{
		ID: "pp1", ParticipantID: "p1", CampaignID: "c1", CodeID: "k1",
	}))

	referenced, err = f.reg.Referenced(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, referenced)

	// the code flag is clear, as after a reversal, but the participation still holds it
	view, err := f.reg.Inspect(ctx, "AAAA2222")
	require.NoError(t, err)
	assert.False(t, view.Code.IsUsed)
	assert.Equal(t, model.CodeStateAlreadyUsed, view.State)
}
