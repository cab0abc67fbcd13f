// Package service implements the redemption.v1 Connect services on top of
// the redemption engine.
package service

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
	"go.uber.org/zap"

	v1 "github.com/kkkkikiki/redemption/api/redemption/v1"
	"github.com/kkkkikiki/redemption/internal/qrexport"
	"github.com/kkkkikiki/redemption/internal/redemption"
	"github.com/kkkkikiki/redemption/internal/registry"
)

// RedemptionServer implements the public redemption service
type RedemptionServer struct {
	coordinator *redemption.Coordinator
	registry    *registry.Registry
	qr          *qrexport.Renderer
	logger      *zap.Logger
}

// NewRedemptionServer creates a new RedemptionServer instance
func NewRedemptionServer(coordinator *redemption.Coordinator, reg *registry.Registry, qr *qrexport.Renderer, logger *zap.Logger) *RedemptionServer {
	return &RedemptionServer{
		coordinator: coordinator,
		registry:    reg,
		qr:          qr,
		logger:      logger,
	}
}

// GetCode resolves a scanned slug to the state shown on the landing page
func (s *RedemptionServer) GetCode(
	ctx context.Context,
	req *connect.Request[v1.GetCodeRequest],
) (*connect.Response[v1.GetCodeResponse], error) {
	if req.Msg.Slug == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("slug is required"))
	}

	view, err := s.registry.Inspect(ctx, req.Msg.Slug)
	if err != nil {
		return nil, ToConnectError(err)
	}

	res := &v1.GetCodeResponse{State: string(view.State)}
	if view.Code != nil {
		res.Code = toCode(view.Code, s.qr)
	}
	if view.Campaign != nil {
		res.Campaign = toTerms(view.Campaign)
	}
	return connect.NewResponse(res), nil
}

// Redeem submits the participation form for a code
func (s *RedemptionServer) Redeem(
	ctx context.Context,
	req *connect.Request[v1.RedeemRequest],
) (*connect.Response[v1.RedeemResponse], error) {
	participation, err := s.coordinator.Redeem(ctx, redemption.Input{
		CodeSlug:   req.Msg.CodeSlug,
		CodeID:     req.Msg.CodeID,
		CampaignID: req.Msg.CampaignID,
		FirstName:  req.Msg.FirstName,
		LastName:   req.Msg.LastName,
		Email:      req.Msg.Email,
		Phone:      req.Msg.Phone,
	})
	if err != nil {
		return nil, ToConnectError(err)
	}

	return connect.NewResponse(&v1.RedeemResponse{ParticipationID: participation.ID}), nil
}
