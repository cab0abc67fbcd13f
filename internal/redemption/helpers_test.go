package redemption

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/store"
	"github.com/kkkkikiki/redemption/internal/store/memory"
)

var testNow = time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

type sequence struct{ n atomic.Int64 }

func (s *sequence) NewID() string { return fmt.Sprintf("id-%04d", s.n.Add(1)) }

// faults makes individual storage calls fail
type faults struct {
	mu sync.Mutex

	createParticipant   error
	createParticipation error
	claim               error
	claimApplies        bool
	deleteParticipation error
	deleteParticipant   error
	setReverted         error
	beforeClaim         func()
}

func (f *faults) get(read func(*faults) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return read(f)
}

type faultyStore struct {
	*memory.Store
	f *faults
}

func (s *faultyStore) Participants() store.Participants {
	return faultyParticipants{Participants: s.Store.Participants(), f: s.f}
}

func (s *faultyStore) Participations() store.Participations {
	return faultyParticipations{Participations: s.Store.Participations(), f: s.f}
}

func (s *faultyStore) Codes() store.Codes {
	return faultyCodes{Codes: s.Store.Codes(), f: s.f}
}

type faultyParticipants struct {
	store.Participants
	f *faults
}

func (p faultyParticipants) CreateParticipant(ctx context.Context, participant *model.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.f.get(func(f *faults) error { return f.createParticipant }); err != nil {
		return err
	}
	return p.Participants.CreateParticipant(ctx, participant)
}

func (p faultyParticipants) DeleteParticipant(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.f.get(func(f *faults) error { return f.deleteParticipant }); err != nil {
		return err
	}
	return p.Participants.DeleteParticipant(ctx, id)
}

type faultyParticipations struct {
	store.Participations
	f *faults
}

func (p faultyParticipations) CreateParticipation(ctx context.Context, participation *model.Participation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.f.get(func(f *faults) error { return f.createParticipation }); err != nil {
		return err
	}
	return p.Participations.CreateParticipation(ctx, participation)
}

func (p faultyParticipations) DeleteParticipation(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.f.get(func(f *faults) error { return f.deleteParticipation }); err != nil {
		return err
	}
	return p.Participations.DeleteParticipation(ctx, id)
}

func (p faultyParticipations) SetReverted(ctx context.Context, id string, at *time.Time) error {
	if err := p.f.get(func(f *faults) error { return f.setReverted }); err != nil {
		return err
	}
	return p.Participations.SetReverted(ctx, id, at)
}

type faultyCodes struct {
	store.Codes
	f *faults
}

func (c faultyCodes) ClaimCode(ctx context.Context, id string, now time.Time) (bool, error) {
	c.f.mu.Lock()
	hook, claimErr, applies := c.f.beforeClaim, c.f.claim, c.f.claimApplies
	c.f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if claimErr != nil {
		if applies {
			_, _ = c.Codes.ClaimCode(ctx, id, now)
		}
		return false, claimErr
	}
	return c.Codes.ClaimCode(ctx, id, now)
}

// txStore runs transaction callbacks directly against the memory store
type txStore struct {
	*memory.Store
	calls atomic.Int64
}

func (s *txStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	s.calls.Add(1)
	return fn(ctx, s.Store)
}

// seedCampaign creates campaign c1 with budget uses and the given code slugs
func seedCampaign(t *testing.T, s *memory.Store, budget int, slugs ...string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Campaigns().CreateCampaign(ctx, &model.Campaign{
		ID:            "c1",
		Name:          "Cortado Week",
		DiscountRate:  30,
		TotalUses:     budget,
		RemainingUses: budget,
		ExpiryDate:    testNow.Add(72 * time.Hour),
		State:         model.CampaignStateActive,
	}))
	codes := make([]model.Code, 0, len(slugs))
	for _, slug := range slugs {
		codes = append(codes, model.Code{
			ID:         "code-" + slug,
			CampaignID: "c1",
			Slug:       slug,
			ExpiresAt:  testNow.Add(72 * time.Hour),
			CreatedAt:  testNow,
		})
	}
	_, err := s.Codes().InsertCodes(ctx, codes)
	require.NoError(t, err)
}

func input(slug string) Input {
	return Input{
		CodeSlug:   slug,
		CampaignID: "c1",
		FirstName:  "Deniz",
		LastName:   "Kaya",
		Email:      "deniz@example.com",
		Phone:      "5321234567",
	}
}

type snapshot struct {
	remaining      int
	participants   int
	participations int
	usedCodes      int
}

func snap(t *testing.T, s *memory.Store) snapshot {
	t.Helper()
	ctx := context.Background()

	c, err := s.Campaigns().GetCampaign(ctx, "c1")
	require.NoError(t, err)
	participants, err := s.Participants().CountParticipants(ctx)
	require.NoError(t, err)
	participations, err := s.Participations().ListParticipations(ctx, "c1")
	require.NoError(t, err)
	_, used, err := s.Codes().CountCodes(ctx)
	require.NoError(t, err)

	return snapshot{
		remaining:      c.RemainingUses,
		participants:   participants,
		participations: len(participations),
		usedCodes:      used,
	}
}
