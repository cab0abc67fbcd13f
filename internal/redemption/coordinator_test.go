package redemption

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/kkkkikiki/redemption/internal/event"
	eventmocks "github.com/kkkkikiki/redemption/internal/event/mocks"
	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/store"
	"github.com/kkkkikiki/redemption/internal/store/memory"
)

func newCoordinator(t *testing.T, s store.Store, events event.Publisher, mode Mode) *Coordinator {
	t.Helper()
	c, err := New(s, &sequence{}, events, zap.NewNop(), Config{Mode: mode}, WithClock(clock))
	require.NoError(t, err)
	return c
}

func TestRedeemSuccess(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	seedCampaign(t, mem, 3, "AAAA2222", "BBBB3333")

	bus := event.NewBus()
	var published []event.Event
	bus.SubscribeAll(func(_ context.Context, e event.Event) { published = append(published, e) })

	c := newCoordinator(t, mem, bus, ModeAuto)
	assert.False(t, c.Transactional())

	in := input("AAAA2222")
	in.FirstName = "  Deniz "
	in.Email = " Deniz@Example.COM "
	in.Phone = "0 (532) 123 45 67"

	participation, err := c.Redeem(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, participation)
	assert.Equal(t, "c1", participation.CampaignID)
	assert.Equal(t, "code-AAAA2222", participation.CodeID)

	assert.Equal(t, snapshot{remaining: 2, participants: 1, participations: 1, usedCodes: 1}, snap(t, mem))

	view, err := mem.Participations().GetParticipation(ctx, participation.ID)
	require.NoError(t, err)
	assert.True(t, view.IsUsed)
	assert.Equal(t, "Deniz", view.FirstName)
	assert.Equal(t, "deniz@example.com", view.Email)
	assert.Equal(t, "5321234567", view.Phone)
	assert.Equal(t, "AAAA2222", view.CodeSlug)

	require.Len(t, published, 1)
	assert.Equal(t, event.CodeRedeemed, published[0].Type)
	assert.Equal(t, participation.ID, published[0].ParticipationID)

	_, err = c.Redeem(ctx, input("AAAA2222"))
	assert.ErrorIs(t, err, model.ErrAlreadyUsed)
	assert.Equal(t, 2, snap(t, mem).remaining)
}

func TestRedeemByCodeID(t *testing.T) {
	mem := memory.New()
	seedCampaign(t, mem, 1, "AAAA2222")
	c := newCoordinator(t, mem, event.Nop{}, ModeAuto)

	in := input("")
	in.CodeID = "code-AAAA2222"
	_, err := c.Redeem(context.Background(), in)
	require.NoError(t, err)

	in.CodeSlug = "ZZZZ9999"
	_, err = c.Redeem(context.Background(), in)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRedeemValidation(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(in *Input)
		field  string
	}{
		{name: "short first name", mutate: func(in *Input) { in.FirstName = " A " }, field: "first_name"},
		{name: "long last name", mutate: func(in *Input) { in.LastName = strings.Repeat("k", 51) }, field: "last_name"},
		{name: "bad email", mutate: func(in *Input) { in.Email = "deniz@" }, field: "email"},
		{name: "landline", mutate: func(in *Input) { in.Phone = "0212 123 45 67" }, field: "phone"},
		{name: "short phone", mutate: func(in *Input) { in.Phone = "532 123" }, field: "phone"},
		{name: "no code", mutate: func(in *Input) { in.CodeSlug = "" }, field: "code_slug"},
		{name: "no campaign", mutate: func(in *Input) { in.CampaignID = " " }, field: "campaign_id"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mem := memory.New()
			seedCampaign(t, mem, 1, "AAAA2222")
			c := newCoordinator(t, mem, event.Nop{}, ModeAuto)

			in := input("AAAA2222")
			tc.mutate(&in)
			_, err := c.Redeem(context.Background(), in)
			require.ErrorIs(t, err, model.ErrValidationFailed)

			var verr *model.Error
			require.True(t, errors.As(err, &verr))
			fields := make([]string, 0, len(verr.Details))
			for _, d := range verr.Details {
				fields = append(fields, d.Field)
			}
			assert.Contains(t, fields, tc.field)

			assert.Equal(t, snapshot{remaining: 1}, snap(t, mem), "no mutation before validation passes")
		})
	}
}

func TestRedeemPrecheck(t *testing.T) {
	ctx := context.Background()

	t.Run("code of another campaign", func(t *testing.T) {
		mem := memory.New()
		seedCampaign(t, mem, 1, "AAAA2222")
		c := newCoordinator(t, mem, event.Nop{}, ModeAuto)

		in := input("AAAA2222")
		in.CampaignID = "other"
		_, err := c.Redeem(ctx, in)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("unknown slug", func(t *testing.T) {
		mem := memory.New()
		seedCampaign(t, mem, 1, "AAAA2222")
		c := newCoordinator(t, mem, event.Nop{}, ModeAuto)

		_, err := c.Redeem(ctx, input("ZZZZ9999"))
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("inactive campaign", func(t *testing.T) {
		mem := memory.New()
		seedCampaign(t, mem, 1, "AAAA2222")
		campaign, err := mem.Campaigns().GetCampaign(ctx, "c1")
		require.NoError(t, err)
		campaign.State = model.CampaignStateInactive
		require.NoError(t, mem.Campaigns().UpdateCampaign(ctx, campaign))
		c := newCoordinator(t, mem, event.Nop{}, ModeAuto)

		_, err = c.Redeem(ctx, input("AAAA2222"))
		assert.ErrorIs(t, err, model.ErrInactive)
	})

	t.Run("expired code", func(t *testing.T) {
		mem := memory.New()
		seedCampaign(t, mem, 2)
		_, err := mem.Codes().InsertCodes(ctx, []model.Code{
			{ID: "old", CampaignID: "c1", Slug: "OLDD2222", ExpiresAt: testNow},
		})
		require.NoError(t, err)
		c := newCoordinator(t, mem, event.Nop{}, ModeAuto)

		_, err = c.Redeem(ctx, input("OLDD2222"))
		assert.ErrorIs(t, err, model.ErrExpired)
		assert.Equal(t, 2, snap(t, mem).remaining)
	})

	t.Run("exhausted campaign", func(t *testing.T) {
		mem := memory.New()
		seedCampaign(t, mem, 1, "AAAA2222", "BBBB3333")
		c := newCoordinator(t, mem, event.Nop{}, ModeAuto)

		_, err := c.Redeem(ctx, input("AAAA2222"))
		require.NoError(t, err)
		_, err = c.Redeem(ctx, input("BBBB3333"))
		assert.ErrorIs(t, err, model.ErrExhausted)
	})
}

// Whichever step fails, the attempt leaves no participant, participation,
// claimed code or consumed budget behind.
func TestRedeemCompensatesFailedStep(t *testing.T) {
	boom := errors.New("connection reset")

	testCases := []struct {
		name    string
		faults  func(mem *memory.Store) *faults
		wantErr error
	}{
		{
			name:   "participant insert fails",
			faults: func(*memory.Store) *faults { return &faults{createParticipant: boom} },
		},
		{
			name:   "participation insert fails",
			faults: func(*memory.Store) *faults { return &faults{createParticipation: boom} },
		},
		{
			name:   "claim errors without applying",
			faults: func(*memory.Store) *faults { return &faults{claim: boom} },
		},
		{
			name:   "claim errors after applying",
			faults: func(*memory.Store) *faults { return &faults{claim: boom, claimApplies: true} },
		},
		{
			name: "claim loses to a concurrent attempt",
			faults: func(mem *memory.Store) *faults {
				return &faults{beforeClaim: func() {
					_, _ = mem.Codes().ClaimCode(context.Background(), "code-AAAA2222", testNow)
				}}
			},
			wantErr: model.ErrAlreadyUsed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mem := memory.New()
			seedCampaign(t, mem, 5, "AAAA2222")
			f := tc.faults(mem)
			c := newCoordinator(t, &faultyStore{Store: mem, f: f}, event.Nop{}, ModeAuto)

			participation, err := c.Redeem(context.Background(), input("AAAA2222"))
			require.Error(t, err)
			assert.Nil(t, participation)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.ErrorIs(t, err, boom)
			}
			assert.NotErrorIs(t, err, model.ErrCompensationFailed)

			got := snap(t, mem)
			assert.Equal(t, 5, got.remaining)
			assert.Zero(t, got.participants)
			assert.Zero(t, got.participations)
			if tc.wantErr == nil {
				assert.Zero(t, got.usedCodes)
			}
		})
	}
}

func TestRedeemSurfacesCompensationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	events := eventmocks.NewMockPublisher(ctrl)

	mem := memory.New()
	seedCampaign(t, mem, 5, "AAAA2222")
	f := &faults{
		deleteParticipation: errors.New("disk full"),
		beforeClaim: func() {
			_, _ = mem.Codes().ClaimCode(context.Background(), "code-AAAA2222", testNow)
		},
	}
	c := newCoordinator(t, &faultyStore{Store: mem, f: f}, events, ModeAuto)

	events.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, e event.Event) {
			assert.Equal(t, event.CompensationFailed, e.Type)
			assert.Equal(t, "c1", e.CampaignID)
			assert.Equal(t, "code-AAAA2222", e.CodeID)
			assert.Equal(t, string(model.ReasonAlreadyUsed), e.Reason)
		}).
		Times(1)

	_, err := c.Redeem(context.Background(), input("AAAA2222"))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAlreadyUsed)
	assert.ErrorIs(t, err, model.ErrCompensationFailed)
	assert.Equal(t, model.ReasonAlreadyUsed, model.ReasonOf(err))

	// the undos after the failed one still ran
	got := snap(t, mem)
	assert.Equal(t, 5, got.remaining)
	assert.Zero(t, got.participants)
	assert.Equal(t, 1, got.participations)
}

func TestRedeemCompensatesAfterCancellation(t *testing.T) {
	mem := memory.New()
	seedCampaign(t, mem, 2, "AAAA2222")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &faults{beforeClaim: cancel}
	c := newCoordinator(t, &faultyStore{Store: mem, f: f}, event.Nop{}, ModeAuto)

	_, err := c.Redeem(ctx, input("AAAA2222"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, model.ErrCompensationFailed)

	assert.Equal(t, snapshot{remaining: 2}, snap(t, mem))
}

// Two attempts on the same code with budget to spare: one wins, the loser's
// reservation is given back.
func TestRedeemSameCodeConcurrently(t *testing.T) {
	mem := memory.New()
	seedCampaign(t, mem, 5, "AAAA2222")
	c := newCoordinator(t, mem, event.Nop{}, ModeCompensation)

	const attempts = 16
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Redeem(context.Background(), input("AAAA2222"))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, model.ErrAlreadyUsed)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, snapshot{remaining: 4, participants: 1, participations: 1, usedCodes: 1}, snap(t, mem))
}

// More codes than budget, all redeemed at once: exactly the budget succeeds.
func TestRedeemNeverOversells(t *testing.T) {
	mem := memory.New()
	slugs := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		slugs = append(slugs, "SLUG"+string(rune('A'+i%26))+string(rune('2'+i/26))+"XY")
	}
	seedCampaign(t, mem, 10, slugs...)
	c := newCoordinator(t, mem, event.Nop{}, ModeAuto)

	var (
		mu        sync.Mutex
		wins      int
		exhausted int
		wg        sync.WaitGroup
	)
	for _, slug := range slugs {
		wg.Add(1)
		go func(slug string) {
			defer wg.Done()
			_, err := c.Redeem(context.Background(), input(slug))
			mu.Lock()
			defer mu.Unlock()
			switch model.ReasonOf(err) {
			case model.ReasonExhausted:
				exhausted++
			default:
				if err == nil {
					wins++
				}
			}
		}(slug)
	}
	wg.Wait()

	assert.Equal(t, 10, wins)
	assert.Equal(t, 20, exhausted)
	assert.Equal(t, snapshot{remaining: 0, participants: 10, participations: 10, usedCodes: 10}, snap(t, mem))
}

func TestTransactionalMode(t *testing.T) {
	mem := memory.New()
	seedCampaign(t, mem, 2, "AAAA2222")
	tx := &txStore{Store: mem}

	c := newCoordinator(t, tx, event.Nop{}, ModeAuto)
	assert.True(t, c.Transactional())

	_, err := c.Redeem(context.Background(), input("AAAA2222"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), tx.calls.Load())

	forced := newCoordinator(t, tx, event.Nop{}, ModeCompensation)
	assert.False(t, forced.Transactional())
}

func TestNewRejectsMode(t *testing.T) {
	_, err := New(memory.New(), &sequence{}, event.Nop{}, zap.NewNop(), Config{Mode: ModeTransaction})
	assert.Error(t, err)

	_, err = New(memory.New(), &sequence{}, event.Nop{}, zap.NewNop(), Config{Mode: "saga"})
	assert.Error(t, err)
}
