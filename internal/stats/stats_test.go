package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/store/memory"
)

func TestDashboardEmpty(t *testing.T) {
	d, err := New(memory.New()).Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Dashboard{}, d)
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := memory.New()

	campaigns := []model.Campaign{
		{ID: "c1", Name: "Latte", DiscountRate: 20, TotalUses: 3, RemainingUses: 1, ExpiryDate: now.Add(time.Hour), State: model.CampaignStateActive},
		{ID: "c2", Name: "Mocha", DiscountRate: 35, TotalUses: 2, RemainingUses: 1, ExpiryDate: now.Add(time.Hour), State: model.CampaignStateActive},
		{ID: "c3", Name: "Old", DiscountRate: 90, TotalUses: 1, RemainingUses: 1, ExpiryDate: now.Add(-time.Hour), State: model.CampaignStateActive},
	}
	for i := range campaigns {
		require.NoError(t, s.Campaigns().CreateCampaign(ctx, &campaigns[i]))
	}
	_, err := s.Codes().InsertCodes(ctx, []model.Code{
		{ID: "k1", CampaignID: "c1", Slug: "AAAA2222", ExpiresAt: now.Add(time.Hour)},
		{ID: "k2", CampaignID: "c1", Slug: "BBBB2222", ExpiresAt: now.Add(time.Hour)},
		{ID: "k3", CampaignID: "c2", Slug: "CCCC2222", ExpiresAt: now.Add(time.Hour)},
		{ID: "k4", CampaignID: "c3", Slug: "DDDD2222", ExpiresAt: now.Add(-time.Hour)},
	})
	require.NoError(t, err)

	for i, codeID := range []string{"k1", "k2", "k3"} {
		p := &model.Participant{ID: codeID + "-p", FirstName: "Ada"}
		require.NoError(t, s.Participants().CreateParticipant(ctx, p))
		require.NoError(t, s.Participations().CreateParticipation(ctx, &model.Participation{
			ID: codeID + "-pp", ParticipantID: p.ID, CampaignID: []string{"c1", "c1", "c2"}[i], CodeID: codeID,
		}))
	}
	for _, codeID := range []string{"k1", "k3"} {
		ok, err := s.Codes().ClaimCode(ctx, codeID, now)
		require.NoError(t, err)
		require.True(t, ok)
	}

	d, err := New(s).Dashboard(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, d.TotalCampaigns)
	assert.Equal(t, 2, d.ActiveCampaigns)
	assert.Equal(t, 3, d.TotalParticipants)
	assert.Equal(t, 4, d.TotalCodes)
	assert.Equal(t, 2, d.UsedCodes)
	assert.Equal(t, 2, d.UnusedCodes)
	assert.Equal(t, 2, d.UsedParticipations)
	assert.Equal(t, 1, d.UnusedParticipations)
	assert.InDelta(t, 28, d.AverageDiscountRate, 0.001)
	require.NotNil(t, d.MostPopularCampaign)
	assert.Equal(t, PopularCampaign{ID: "c1", Name: "Latte", Participations: 2}, *d.MostPopularCampaign)
}
