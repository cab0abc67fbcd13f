package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/redemption/internal/model"
)

func seed(t *testing.T, s *Store, expiry time.Time, slugs ...string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Campaigns().CreateCampaign(ctx, &model.Campaign{
		ID:            "c1",
		Name:          "Autumn Latte",
		DiscountRate:  15,
		TotalUses:     len(slugs),
		RemainingUses: len(slugs),
		ExpiryDate:    expiry,
		State:         model.CampaignStateActive,
	}))
	batch := make([]model.Code, 0, len(slugs))
	for _, slug := range slugs {
		batch = append(batch, model.Code{ID: "code-" + slug, CampaignID: "c1", Slug: slug, ExpiresAt: expiry})
	}
	ids, err := s.Codes().InsertCodes(ctx, batch)
	require.NoError(t, err)
	require.Len(t, ids, len(slugs))
}

func TestCampaignConditionalWrites(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := New()
	seed(t, s, now.Add(time.Hour), "aaaaaaaa")

	ok, err := s.Campaigns().DecrementRemaining(ctx, "c1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Campaigns().DecrementRemaining(ctx, "c1", now)
	require.NoError(t, err)
	assert.False(t, ok, "budget is empty")

	ok, err = s.Campaigns().DecrementRemaining(ctx, "missing", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Campaigns().IncrementRemaining(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Campaigns().IncrementRemaining(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok, "remaining cannot exceed total")

	ok, err = s.Campaigns().DecrementRemaining(ctx, "c1", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "expired campaigns refuse reservations")
}

func TestAddUsesAndSetRemaining(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, time.Now().Add(time.Hour), "aaaaaaaa", "bbbbbbbb")

	require.NoError(t, s.Campaigns().AddUses(ctx, "c1", 3))
	c, err := s.Campaigns().GetCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, c.TotalUses)
	assert.Equal(t, 5, c.RemainingUses)

	require.NoError(t, s.Campaigns().SetRemaining(ctx, "c1", 9))
	c, _ = s.Campaigns().GetCampaign(ctx, "c1")
	assert.Equal(t, 5, c.RemainingUses, "clamped to total")

	require.NoError(t, s.Campaigns().SetRemaining(ctx, "c1", -2))
	c, _ = s.Campaigns().GetCampaign(ctx, "c1")
	assert.Equal(t, 0, c.RemainingUses, "clamped to zero")

	assert.ErrorIs(t, s.Campaigns().AddUses(ctx, "missing", 1), model.ErrNotFound)
}

func TestInsertCodesSkipsTakenSlugs(t *testing.T) {
	ctx := context.Background()
	s := New()
	expiry := time.Now().Add(time.Hour)
	seed(t, s, expiry, "aaaaaaaa")

	ids, err := s.Codes().InsertCodes(ctx, []model.Code{
		{ID: "dup", CampaignID: "c1", Slug: "aaaaaaaa", ExpiresAt: expiry},
		{ID: "new", CampaignID: "c1", Slug: "cccccccc", ExpiresAt: expiry},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids)

	_, err = s.Codes().InsertCodes(ctx, []model.Code{{ID: "x", CampaignID: "nope", Slug: "dddddddd", ExpiresAt: expiry}})
	assert.ErrorIs(t, err, model.ErrNotFound)

	code, err := s.Codes().GetCodeBySlug(ctx, "cccccccc")
	require.NoError(t, err)
	assert.Equal(t, "new", code.ID)
}

func TestClaimAndUnclaim(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := New()
	seed(t, s, now.Add(time.Hour), "aaaaaaaa", "bbbbbbbb")

	ok, err := s.Codes().ClaimCode(ctx, "code-aaaaaaaa", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Codes().ClaimCode(ctx, "code-aaaaaaaa", now)
	require.NoError(t, err)
	assert.False(t, ok, "second claim loses")

	ok, err = s.Codes().ClaimCode(ctx, "code-bbbbbbbb", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "expired code")

	code, err := s.Codes().GetCode(ctx, "code-aaaaaaaa")
	require.NoError(t, err)
	assert.True(t, code.IsUsed)
	require.NotNil(t, code.UsedAt)

	used, err := s.Codes().ListCodes(ctx, "c1", model.CodeFilterUsed)
	require.NoError(t, err)
	assert.Len(t, used, 1)

	total, usedCount, err := s.Codes().CountCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, usedCount)

	ok, err = s.Codes().UnclaimCode(ctx, "code-aaaaaaaa")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Codes().UnclaimCode(ctx, "code-aaaaaaaa")
	require.NoError(t, err)
	assert.False(t, ok)

	code, _ = s.Codes().GetCode(ctx, "code-aaaaaaaa")
	assert.False(t, code.IsUsed)
	assert.Nil(t, code.UsedAt)
}

func TestParticipationsUsageAndOrphans(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := New()
	seed(t, s, now.Add(time.Hour), "aaaaaaaa", "bbbbbbbb", "cccccccc")

	for _, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, s.Participants().CreateParticipant(ctx, &model.Participant{ID: id, FirstName: "Ana", Email: id + "@example.com"}))
	}
	old := now.Add(-time.Hour)
	for i, slug := range []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"} {
		require.NoError(t, s.Participations().CreateParticipation(ctx, &model.Participation{
			ID:            "pp" + slug,
			ParticipantID: []string{"p1", "p2", "p3"}[i],
			CampaignID:    "c1",
			CodeID:        "code-" + slug,
			CreatedAt:     old,
		}))
	}

	err := s.Participations().CreateParticipation(ctx, &model.Participation{
		ID: "dup", ParticipantID: "p1", CampaignID: "c1", CodeID: "code-aaaaaaaa",
	})
	assert.ErrorIs(t, err, model.ErrAlreadyUsed)

	// a: used, b: reverted, c: orphan
	_, err = s.Codes().ClaimCode(ctx, "code-aaaaaaaa", now)
	require.NoError(t, err)
	require.NoError(t, s.Participations().SetReverted(ctx, "ppbbbbbbbb", &now))

	usage, err := s.Participations().UsageByCampaign(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 3, usage[0].Participations)
	assert.Equal(t, 1, usage[0].Used)
	assert.Equal(t, 1, usage[0].Reverted)
	assert.Equal(t, 2, usage[0].Consumed())

	orphans, err := s.Participations().ListOrphans(ctx, "c1", now)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "ppcccccccc", orphans[0].ID)

	orphans, err = s.Participations().ListOrphans(ctx, "c1", old)
	require.NoError(t, err)
	assert.Empty(t, orphans, "inside the grace period")

	view, err := s.Participations().GetParticipation(ctx, "ppaaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, "Autumn Latte", view.CampaignName)
	assert.Equal(t, "aaaaaaaa", view.CodeSlug)
	assert.True(t, view.IsUsed)

	require.NoError(t, s.Participations().DeleteParticipation(ctx, "ppcccccccc"))
	require.NoError(t, s.Participations().DeleteParticipation(ctx, "ppcccccccc"))
	list, err := s.Participations().ListParticipations(ctx, "")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// the code is free for a new participation again
	require.NoError(t, s.Participations().CreateParticipation(ctx, &model.Participation{
		ID: "again", ParticipantID: "p3", CampaignID: "c1", CodeID: "code-cccccccc",
	}))
}

func TestGetParticipationByCode(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, time.Now().Add(time.Hour), "aaaaaaaa", "bbbbbbbb")

	require.NoError(t, s.Participants().CreateParticipant(ctx, &model.Participant{ID: "p1", FirstName: "Ana"}))
	require.NoError(t, s.Participations().CreateParticipation(ctx, &model.Participation{
		ID: "pp1", ParticipantID: "p1", CampaignID: "c1", CodeID: "code-aaaaaaaa",
	}))

	p, err := s.Participations().GetParticipationByCode(ctx, "code-aaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, "pp1", p.ID)

	_, err = s.Participations().GetParticipationByCode(ctx, "code-bbbbbbbb")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, s.Participations().DeleteParticipation(ctx, "pp1"))
	_, err = s.Participations().GetParticipationByCode(ctx, "code-aaaaaaaa")
	assert.ErrorIs(t, err, model.ErrNotFound)

	c, err := s.Campaigns().GetCampaignForUpdate(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Autumn Latte", c.Name)
}
