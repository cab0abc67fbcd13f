// Package stats computes the admin dashboard tiles.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/store"
)

// PopularCampaign is the campaign with the most participations
type PopularCampaign struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Participations int    `json:"participations"`
}

// Dashboard holds the aggregate counters shown on the admin home page
type Dashboard struct {
	TotalCampaigns       int              `json:"total_campaigns"`
	ActiveCampaigns      int              `json:"active_campaigns"`
	TotalParticipants    int              `json:"total_participants"`
	TotalCodes           int              `json:"total_codes"`
	UsedCodes            int              `json:"used_codes"`
	UnusedCodes          int              `json:"unused_codes"`
	UsedParticipations   int              `json:"used_participations"`
	UnusedParticipations int              `json:"unused_participations"`
	AverageDiscountRate  float64          `json:"average_discount_rate"`
	MostPopularCampaign  *PopularCampaign `json:"most_popular_campaign,omitempty"`
}

// Service reads dashboard statistics from the store
type Service struct {
	store store.Store
	now   func() time.Time
}

// New creates a statistics service
func New(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// Dashboard gathers every tile concurrently
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var (
		d         Dashboard
		campaigns []model.Campaign
		usage     []store.CampaignUsage
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		campaigns, err = s.store.Campaigns().ListCampaigns(ctx)
		if err != nil {
			return fmt.Errorf("failed to list campaigns: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		d.TotalParticipants, err = s.store.Participants().CountParticipants(ctx)
		if err != nil {
			return fmt.Errorf("failed to count participants: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		d.TotalCodes, d.UsedCodes, err = s.store.Codes().CountCodes(ctx)
		if err != nil {
			return fmt.Errorf("failed to count codes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		usage, err = s.store.Participations().UsageByCampaign(ctx)
		if err != nil {
			return fmt.Errorf("failed to aggregate participations: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	d.TotalCampaigns = len(campaigns)
	d.UnusedCodes = d.TotalCodes - d.UsedCodes

	names := make(map[string]string, len(campaigns))
	var rateSum float64
	for _, c := range campaigns {
		names[c.ID] = c.Name
		if c.IsActive(now) {
			d.ActiveCampaigns++
			rateSum += c.DiscountRate
		}
	}
	if d.ActiveCampaigns > 0 {
		d.AverageDiscountRate = math.Round(rateSum / float64(d.ActiveCampaigns))
	}

	for _, u := range usage {
		d.UsedParticipations += u.Used
		d.UnusedParticipations += u.Participations - u.Used

		best := d.MostPopularCampaign
		if best == nil || u.Participations > best.Participations ||
			(u.Participations == best.Participations && u.CampaignID < best.ID) {
			d.MostPopularCampaign = &PopularCampaign{
				ID:             u.CampaignID,
				Name:           names[u.CampaignID],
				Participations: u.Participations,
			}
		}
	}
	return &d, nil
}
