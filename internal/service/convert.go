package service

import (
	v1 "github.com/kkkkikiki/redemption/api/redemption/v1"
	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/qrexport"
	"github.com/kkkkikiki/redemption/internal/reconcile"
	"github.com/kkkkikiki/redemption/internal/stats"
)

func toCode(c *model.Code, qr *qrexport.Renderer) *v1.Code {
	return &v1.Code{
		ID:         c.ID,
		CampaignID: c.CampaignID,
		Slug:       c.Slug,
		URL:        qr.URL(c.Slug),
		IsUsed:     c.IsUsed,
		UsedAt:     c.UsedAt,
		ExpiresAt:  c.ExpiresAt,
		CreatedAt:  c.CreatedAt,
	}
}

func toCodes(codes []model.Code, qr *qrexport.Renderer) []*v1.Code {
	out := make([]*v1.Code, 0, len(codes))
	for i := range codes {
		out = append(out, toCode(&codes[i], qr))
	}
	return out
}

func toTerms(c *model.Campaign) *v1.CampaignTerms {
	return &v1.CampaignTerms{
		ID:                c.ID,
		Name:              c.Name,
		Description:       c.Description,
		DiscountRate:      c.DiscountRate,
		MinPurchaseAmount: c.MinPurchaseAmount,
		MaxDiscountAmount: c.MaxDiscountAmount,
		ExpiryDate:        c.ExpiryDate,
	}
}

func (s *AdminServer) toCampaign(c *model.Campaign) *v1.Campaign {
	return &v1.Campaign{
		CampaignTerms: *toTerms(c),
		TotalUses:     c.TotalUses,
		RemainingUses: c.RemainingUses,
		State:         string(c.State),
		Status:        string(c.Status(s.now())),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func toParticipation(v *model.ParticipationView) *v1.Participation {
	return &v1.Participation{
		ID:            v.ID,
		ParticipantID: v.ParticipantID,
		CampaignID:    v.CampaignID,
		CampaignName:  v.CampaignName,
		CodeID:        v.CodeID,
		CodeSlug:      v.CodeSlug,
		FirstName:     v.FirstName,
		LastName:      v.LastName,
		Email:         v.Email,
		Phone:         v.Phone,
		IsUsed:        v.IsUsed,
		UsedAt:        v.UsedAt,
		RevertedAt:    v.RevertedAt,
		CreatedAt:     v.CreatedAt,
	}
}

func toDashboard(d *stats.Dashboard) *v1.GetDashboardStatsResponse {
	res := &v1.GetDashboardStatsResponse{
		TotalCampaigns:       d.TotalCampaigns,
		ActiveCampaigns:      d.ActiveCampaigns,
		TotalParticipants:    d.TotalParticipants,
		TotalCodes:           d.TotalCodes,
		UsedCodes:            d.UsedCodes,
		UnusedCodes:          d.UnusedCodes,
		UsedParticipations:   d.UsedParticipations,
		UnusedParticipations: d.UnusedParticipations,
		AverageDiscountRate:  d.AverageDiscountRate,
	}
	if p := d.MostPopularCampaign; p != nil {
		res.MostPopularCampaign = &v1.PopularCampaign{ID: p.ID, Name: p.Name, Participations: p.Participations}
	}
	return res
}

func toReport(r *reconcile.Report) *v1.ReconcileResponse {
	res := &v1.ReconcileResponse{
		Campaigns: make([]*v1.CampaignDrift, 0, len(r.Campaigns)),
		Repaired:  r.Repaired,
	}
	for _, d := range r.Campaigns {
		res.Campaigns = append(res.Campaigns, &v1.CampaignDrift{
			CampaignID:    d.CampaignID,
			Name:          d.Name,
			TotalUses:     d.TotalUses,
			RemainingUses: d.RemainingUses,
			Consumed:      d.Consumed,
			InFlight:      d.InFlight,
			Drift:         d.Drift,
			Orphans:       d.Orphans,
			StrayClaims:   d.StrayClaims,
		})
	}
	return res
}
