package service

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"go.uber.org/zap"

	v1 "github.com/kkkkikiki/redemption/api/redemption/v1"
	"github.com/kkkkikiki/redemption/internal/campaign"
	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/qrexport"
	"github.com/kkkkikiki/redemption/internal/reconcile"
	"github.com/kkkkikiki/redemption/internal/redemption"
	"github.com/kkkkikiki/redemption/internal/stats"
)

// AdminServer implements the campaign administration service
type AdminServer struct {
	campaigns   *campaign.Service
	coordinator *redemption.Coordinator
	stats       *stats.Service
	reconciler  *reconcile.Reconciler
	qr          *qrexport.Renderer
	logger      *zap.Logger
	now         func() time.Time
}

// NewAdminServer creates a new AdminServer instance
func NewAdminServer(
	campaigns *campaign.Service,
	coordinator *redemption.Coordinator,
	stats *stats.Service,
	reconciler *reconcile.Reconciler,
	qr *qrexport.Renderer,
	logger *zap.Logger,
) *AdminServer {
	return &AdminServer{
		campaigns:   campaigns,
		coordinator: coordinator,
		stats:       stats,
		reconciler:  reconciler,
		qr:          qr,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateCampaign creates a campaign and mints one code per use
func (s *AdminServer) CreateCampaign(
	ctx context.Context,
	req *connect.Request[v1.CreateCampaignRequest],
) (*connect.Response[v1.CreateCampaignResponse], error) {
	c, err := s.campaigns.Create(ctx, campaign.CreateInput{
		Name:              req.Msg.Name,
		Description:       req.Msg.Description,
		DiscountRate:      req.Msg.DiscountRate,
		MinPurchaseAmount: req.Msg.MinPurchaseAmount,
		MaxDiscountAmount: req.Msg.MaxDiscountAmount,
		TotalUses:         req.Msg.TotalUses,
		ExpiryDate:        req.Msg.ExpiryDate,
	})
	if err != nil {
		return nil, ToConnectError(err)
	}
	return connect.NewResponse(&v1.CreateCampaignResponse{Campaign: s.toCampaign(c)}), nil
}

func (s *AdminServer) GetCampaign(
	ctx context.Context,
	req *connect.Request[v1.GetCampaignRequest],
) (*connect.Response[v1.GetCampaignResponse], error) {
	c, err := s.campaigns.Get(ctx, req.Msg.CampaignID)
	if err != nil {
		return nil, ToConnectError(err)
	}
	return connect.NewResponse(&v1.GetCampaignResponse{Campaign: s.toCampaign(c)}), nil
}

func (s *AdminServer) ListCampaigns(
	ctx context.Context,
	_ *connect.Request[v1.ListCampaignsRequest],
) (*connect.Response[v1.ListCampaignsResponse], error) {
	campaigns, err := s.campaigns.List(ctx)
	if err != nil {
		return nil, ToConnectError(err)
	}

	res := &v1.ListCampaignsResponse{Campaigns: make([]*v1.Campaign, 0, len(campaigns))}
	for i := range campaigns {
		res.Campaigns = append(res.Campaigns, s.toCampaign(&campaigns[i]))
	}
	return connect.NewResponse(res), nil
}

// UpdateCampaign edits terms, expiry and state. Issued codes keep their expiry.
func (s *AdminServer) UpdateCampaign(
	ctx context.Context,
	req *connect.Request[v1.UpdateCampaignRequest],
) (*connect.Response[v1.UpdateCampaignResponse], error) {
	c, err := s.campaigns.Update(ctx, campaign.UpdateInput{
		ID:                req.Msg.CampaignID,
		Name:              req.Msg.Name,
		Description:       req.Msg.Description,
		DiscountRate:      req.Msg.DiscountRate,
		MinPurchaseAmount: req.Msg.MinPurchaseAmount,
		MaxDiscountAmount: req.Msg.MaxDiscountAmount,
		ExpiryDate:        req.Msg.ExpiryDate,
		State:             model.CampaignState(req.Msg.State),
	})
	if err != nil {
		return nil, ToConnectError(err)
	}
	return connect.NewResponse(&v1.UpdateCampaignResponse{Campaign: s.toCampaign(c)}), nil
}

func (s *AdminServer) IssueCodes(
	ctx context.Context,
	req *connect.Request[v1.IssueCodesRequest],
) (*connect.Response[v1.IssueCodesResponse], error) {
	codes, err := s.campaigns.IssueCodes(ctx, req.Msg.CampaignID, req.Msg.Quantity)
	if err != nil {
		return nil, ToConnectError(err)
	}
	return connect.NewResponse(&v1.IssueCodesResponse{Codes: toCodes(codes, s.qr)}), nil
}

func (s *AdminServer) ListCodes(
	ctx context.Context,
	req *connect.Request[v1.ListCodesRequest],
) (*connect.Response[v1.ListCodesResponse], error) {
	codes, err := s.campaigns.ListCodes(ctx, req.Msg.CampaignID, model.CodeFilter(req.Msg.Filter))
	if err != nil {
		return nil, ToConnectError(err)
	}
	return connect.NewResponse(&v1.ListCodesResponse{Codes: toCodes(codes, s.qr)}), nil
}

func (s *AdminServer) ListParticipations(
	ctx context.Context,
	req *connect.Request[v1.ListParticipationsRequest],
) (*connect.Response[v1.ListParticipationsResponse], error) {
	views, err := s.campaigns.ListParticipations(ctx, req.Msg.CampaignID, req.Msg.Query)
	if err != nil {
		return nil, ToConnectError(err)
	}

	res := &v1.ListParticipationsResponse{Participations: make([]*v1.Participation, 0, len(views))}
	for i := range views {
		res.Participations = append(res.Participations, toParticipation(&views[i]))
	}
	return connect.NewResponse(res), nil
}

// RevertParticipation frees the code of a redeemed participation
func (s *AdminServer) RevertParticipation(
	ctx context.Context,
	req *connect.Request[v1.RevertParticipationRequest],
) (*connect.Response[v1.RevertParticipationResponse], error) {
	view, err := s.coordinator.Revert(ctx, req.Msg.ParticipationID)
	if err != nil {
		return nil, ToConnectError(err)
	}
	return connect.NewResponse(&v1.RevertParticipationResponse{Participation: toParticipation(view)}), nil
}

// RestoreParticipation marks a reverted participation used again
func (s *AdminServer) RestoreParticipation(
	ctx context.Context,
	req *connect.Request[v1.RestoreParticipationRequest],
) (*connect.Response[v1.RestoreParticipationResponse], error) {
	view, err := s.coordinator.Restore(ctx, req.Msg.ParticipationID)
	if err != nil {
		return nil, ToConnectError(err)
	}
	return connect.NewResponse(&v1.RestoreParticipationResponse{Participation: toParticipation(view)}), nil
}

func (s *AdminServer) GetDashboardStats(
	ctx context.Context,
	_ *connect.Request[v1.GetDashboardStatsRequest],
) (*connect.Response[v1.GetDashboardStatsResponse], error) {
	d, err := s.stats.Dashboard(ctx)
	if err != nil {
		return nil, ToConnectError(err)
	}
	return connect.NewResponse(toDashboard(d)), nil
}

// Reconcile audits campaign budgets and optionally repairs the drift found
func (s *AdminServer) Reconcile(
	ctx context.Context,
	req *connect.Request[v1.ReconcileRequest],
) (*connect.Response[v1.ReconcileResponse], error) {
	var (
		report *reconcile.Report
		err    error
	)
	if req.Msg.Repair {
		report, err = s.reconciler.Repair(ctx, req.Msg.CampaignID)
	} else {
		report, err = s.reconciler.Audit(ctx, req.Msg.CampaignID)
	}
	if err != nil {
		return nil, ToConnectError(err)
	}

	s.logger.Info("reconcile requested",
		zap.String("campaign_id", req.Msg.CampaignID),
		zap.Bool("repair", req.Msg.Repair),
		zap.Int("dirty", len(report.Dirty())))
	return connect.NewResponse(toReport(report)), nil
}
