// Package redemptionv1connect wires the redemption.v1 services to Connect
// handlers and clients. Messages travel as JSON through redemptionv1.Codec.
package redemptionv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	v1 "github.com/kkkkikiki/redemption/api/redemption/v1"
)

const (
	// RedemptionServiceName is the fully-qualified name of the public service
	RedemptionServiceName = "redemption.v1.RedemptionService"
	// AdminServiceName is the fully-qualified name of the admin service
	AdminServiceName = "redemption.v1.AdminService"
)

const (
	RedemptionServiceGetCodeProcedure = "/redemption.v1.RedemptionService/GetCode"
	RedemptionServiceRedeemProcedure  = "/redemption.v1.RedemptionService/Redeem"

	AdminServiceCreateCampaignProcedure       = "/redemption.v1.AdminService/CreateCampaign"
	AdminServiceGetCampaignProcedure          = "/redemption.v1.AdminService/GetCampaign"
	AdminServiceListCampaignsProcedure        = "/redemption.v1.AdminService/ListCampaigns"
	AdminServiceUpdateCampaignProcedure       = "/redemption.v1.AdminService/UpdateCampaign"
	AdminServiceIssueCodesProcedure           = "/redemption.v1.AdminService/IssueCodes"
	AdminServiceListCodesProcedure            = "/redemption.v1.AdminService/ListCodes"
	AdminServiceListParticipationsProcedure   = "/redemption.v1.AdminService/ListParticipations"
	AdminServiceRevertParticipationProcedure  = "/redemption.v1.AdminService/RevertParticipation"
	AdminServiceRestoreParticipationProcedure = "/redemption.v1.AdminService/RestoreParticipation"
	AdminServiceGetDashboardStatsProcedure    = "/redemption.v1.AdminService/GetDashboardStats"
	AdminServiceReconcileProcedure            = "/redemption.v1.AdminService/Reconcile"
)

// RedemptionServiceHandler serves the public landing page and form
type RedemptionServiceHandler interface {
	GetCode(context.Context, *connect.Request[v1.GetCodeRequest]) (*connect.Response[v1.GetCodeResponse], error)
	Redeem(context.Context, *connect.Request[v1.RedeemRequest]) (*connect.Response[v1.RedeemResponse], error)
}

// AdminServiceHandler serves campaign administration
type AdminServiceHandler interface {
	CreateCampaign(context.Context, *connect.Request[v1.CreateCampaignRequest]) (*connect.Response[v1.CreateCampaignResponse], error)
	GetCampaign(context.Context, *connect.Request[v1.GetCampaignRequest]) (*connect.Response[v1.GetCampaignResponse], error)
	ListCampaigns(context.Context, *connect.Request[v1.ListCampaignsRequest]) (*connect.Response[v1.ListCampaignsResponse], error)
	UpdateCampaign(context.Context, *connect.Request[v1.UpdateCampaignRequest]) (*connect.Response[v1.UpdateCampaignResponse], error)
	IssueCodes(context.Context, *connect.Request[v1.IssueCodesRequest]) (*connect.Response[v1.IssueCodesResponse], error)
	ListCodes(context.Context, *connect.Request[v1.ListCodesRequest]) (*connect.Response[v1.ListCodesResponse], error)
	ListParticipations(context.Context, *connect.Request[v1.ListParticipationsRequest]) (*connect.Response[v1.ListParticipationsResponse], error)
	RevertParticipation(context.Context, *connect.Request[v1.RevertParticipationRequest]) (*connect.Response[v1.RevertParticipationResponse], error)
	RestoreParticipation(context.Context, *connect.Request[v1.RestoreParticipationRequest]) (*connect.Response[v1.RestoreParticipationResponse], error)
	GetDashboardStats(context.Context, *connect.Request[v1.GetDashboardStatsRequest]) (*connect.Response[v1.GetDashboardStatsResponse], error)
	Reconcile(context.Context, *connect.Request[v1.ReconcileRequest]) (*connect.Response[v1.ReconcileResponse], error)
}

func handlerOptions(opts []connect.HandlerOption) connect.HandlerOption {
	return connect.WithHandlerOptions(append([]connect.HandlerOption{connect.WithCodec(v1.Codec{})}, opts...)...)
}

func clientOptions(opts []connect.ClientOption) connect.ClientOption {
	return connect.WithClientOptions(append([]connect.ClientOption{connect.WithCodec(v1.Codec{})}, opts...)...)
}

// NewRedemptionServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler.
func NewRedemptionServiceHandler(svc RedemptionServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opt := handlerOptions(opts)
	getCode := connect.NewUnaryHandler(RedemptionServiceGetCodeProcedure, svc.GetCode, opt)
	redeem := connect.NewUnaryHandler(RedemptionServiceRedeemProcedure, svc.Redeem, opt)

	return "/" + RedemptionServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case RedemptionServiceGetCodeProcedure:
			getCode.ServeHTTP(w, r)
		case RedemptionServiceRedeemProcedure:
			redeem.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// NewAdminServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler.
func NewAdminServiceHandler(svc AdminServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opt := handlerOptions(opts)
	routes := map[string]http.Handler{
		AdminServiceCreateCampaignProcedure:       connect.NewUnaryHandler(AdminServiceCreateCampaignProcedure, svc.CreateCampaign, opt),
		AdminServiceGetCampaignProcedure:          connect.NewUnaryHandler(AdminServiceGetCampaignProcedure, svc.GetCampaign, opt),
		AdminServiceListCampaignsProcedure:        connect.NewUnaryHandler(AdminServiceListCampaignsProcedure, svc.ListCampaigns, opt),
		AdminServiceUpdateCampaignProcedure:       connect.NewUnaryHandler(AdminServiceUpdateCampaignProcedure, svc.UpdateCampaign, opt),
		AdminServiceIssueCodesProcedure:           connect.NewUnaryHandler(AdminServiceIssueCodesProcedure, svc.IssueCodes, opt),
		AdminServiceListCodesProcedure:            connect.NewUnaryHandler(AdminServiceListCodesProcedure, svc.ListCodes, opt),
		AdminServiceListParticipationsProcedure:   connect.NewUnaryHandler(AdminServiceListParticipationsProcedure, svc.ListParticipations, opt),
		AdminServiceRevertParticipationProcedure:  connect.NewUnaryHandler(AdminServiceRevertParticipationProcedure, svc.RevertParticipation, opt),
		AdminServiceRestoreParticipationProcedure: connect.NewUnaryHandler(AdminServiceRestoreParticipationProcedure, svc.RestoreParticipation, opt),
		AdminServiceGetDashboardStatsProcedure:    connect.NewUnaryHandler(AdminServiceGetDashboardStatsProcedure, svc.GetDashboardStats, opt),
		AdminServiceReconcileProcedure:            connect.NewUnaryHandler(AdminServiceReconcileProcedure, svc.Reconcile, opt),
	}

	return "/" + AdminServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// RedemptionServiceClient calls the public service
type RedemptionServiceClient struct {
	getCode *connect.Client[v1.GetCodeRequest, v1.GetCodeResponse]
	redeem  *connect.Client[v1.RedeemRequest, v1.RedeemResponse]
}

// NewRedemptionServiceClient creates a client for the service at baseURL,
// for example http://localhost:8080
func NewRedemptionServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *RedemptionServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opt := clientOptions(opts)
	return &RedemptionServiceClient{
		getCode: connect.NewClient[v1.GetCodeRequest, v1.GetCodeResponse](httpClient, baseURL+RedemptionServiceGetCodeProcedure, opt),
		redeem:  connect.NewClient[v1.RedeemRequest, v1.RedeemResponse](httpClient, baseURL+RedemptionServiceRedeemProcedure, opt),
	}
}

func (c *RedemptionServiceClient) GetCode(ctx context.Context, req *connect.Request[v1.GetCodeRequest]) (*connect.Response[v1.GetCodeResponse], error) {
	return c.getCode.CallUnary(ctx, req)
}

func (c *RedemptionServiceClient) Redeem(ctx context.Context, req *connect.Request[v1.RedeemRequest]) (*connect.Response[v1.RedeemResponse], error) {
	return c.redeem.CallUnary(ctx, req)
}

// AdminServiceClient calls the admin service
type AdminServiceClient struct {
	createCampaign       *connect.Client[v1.CreateCampaignRequest, v1.CreateCampaignResponse]
	getCampaign          *connect.Client[v1.GetCampaignRequest, v1.GetCampaignResponse]
	listCampaigns        *connect.Client[v1.ListCampaignsRequest, v1.ListCampaignsResponse]
	updateCampaign       *connect.Client[v1.UpdateCampaignRequest, v1.UpdateCampaignResponse]
	issueCodes           *connect.Client[v1.IssueCodesRequest, v1.IssueCodesResponse]
	listCodes            *connect.Client[v1.ListCodesRequest, v1.ListCodesResponse]
	listParticipations   *connect.Client[v1.ListParticipationsRequest, v1.ListParticipationsResponse]
	revertParticipation  *connect.Client[v1.RevertParticipationRequest, v1.RevertParticipationResponse]
	restoreParticipation *connect.Client[v1.RestoreParticipationRequest, v1.RestoreParticipationResponse]
	getDashboardStats    *connect.Client[v1.GetDashboardStatsRequest, v1.GetDashboardStatsResponse]
	reconcile            *connect.Client[v1.ReconcileRequest, v1.ReconcileResponse]
}

// NewAdminServiceClient creates a client for the admin service at baseURL
func NewAdminServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AdminServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opt := clientOptions(opts)
	return &AdminServiceClient{
		createCampaign:       connect.NewClient[v1.CreateCampaignRequest, v1.CreateCampaignResponse](httpClient, baseURL+AdminServiceCreateCampaignProcedure, opt),
		getCampaign:          connect.NewClient[v1.GetCampaignRequest, v1.GetCampaignResponse](httpClient, baseURL+AdminServiceGetCampaignProcedure, opt),
		listCampaigns:        connect.NewClient[v1.ListCampaignsRequest, v1.ListCampaignsResponse](httpClient, baseURL+AdminServiceListCampaignsProcedure, opt),
		updateCampaign:       connect.NewClient[v1.UpdateCampaignRequest, v1.UpdateCampaignResponse](httpClient, baseURL+AdminServiceUpdateCampaignProcedure, opt),
		issueCodes:           connect.NewClient[v1.IssueCodesRequest, v1.IssueCodesResponse](httpClient, baseURL+AdminServiceIssueCodesProcedure, opt),
		listCodes:            connect.NewClient[v1.ListCodesRequest, v1.ListCodesResponse](httpClient, baseURL+AdminServiceListCodesProcedure, opt),
		listParticipations:   connect.NewClient[v1.ListParticipationsRequest, v1.ListParticipationsResponse](httpClient, baseURL+AdminServiceListParticipationsProcedure, opt),
		revertParticipation:  connect.NewClient[v1.RevertParticipationRequest, v1.RevertParticipationResponse](httpClient, baseURL+AdminServiceRevertParticipationProcedure, opt),
		restoreParticipation: connect.NewClient[v1.RestoreParticipationRequest, v1.RestoreParticipationResponse](httpClient, baseURL+AdminServiceRestoreParticipationProcedure, opt),
		getDashboardStats:    connect.NewClient[v1.GetDashboardStatsRequest, v1.GetDashboardStatsResponse](httpClient, baseURL+AdminServiceGetDashboardStatsProcedure, opt),
		reconcile:            connect.NewClient[v1.ReconcileRequest, v1.ReconcileResponse](httpClient, baseURL+AdminServiceReconcileProcedure, opt),
	}
}

func (c *AdminServiceClient) CreateCampaign(ctx context.Context, req *connect.Request[v1.CreateCampaignRequest]) (*connect.Response[v1.CreateCampaignResponse], error) {
	return c.createCampaign.CallUnary(ctx, req)
}

func (c *AdminServiceClient) GetCampaign(ctx context.Context, req *connect.Request[v1.GetCampaignRequest]) (*connect.Response[v1.GetCampaignResponse], error) {
	return c.getCampaign.CallUnary(ctx, req)
}

func (c *AdminServiceClient) ListCampaigns(ctx context.Context, req *connect.Request[v1.ListCampaignsRequest]) (*connect.Response[v1.ListCampaignsResponse], error) {
	return c.listCampaigns.CallUnary(ctx, req)
}

func (c *AdminServiceClient) UpdateCampaign(ctx context.Context, req *connect.Request[v1.UpdateCampaignRequest]) (*connect.Response[v1.UpdateCampaignResponse], error) {
	return c.updateCampaign.CallUnary(ctx, req)
}

func (c *AdminServiceClient) IssueCodes(ctx context.Context, req *connect.Request[v1.IssueCodesRequest]) (*connect.Response[v1.IssueCodesResponse], error) {
	return c.issueCodes.CallUnary(ctx, req)
}

func (c *AdminServiceClient) ListCodes(ctx context.Context, req *connect.Request[v1.ListCodesRequest]) (*connect.Response[v1.ListCodesResponse], error) {
	return c.listCodes.CallUnary(ctx, req)
}

func (c *AdminServiceClient) ListParticipations(ctx context.Context, req *connect.Request[v1.ListParticipationsRequest]) (*connect.Response[v1.ListParticipationsResponse], error) {
	return c.listParticipations.CallUnary(ctx, req)
}

func (c *AdminServiceClient) RevertParticipation(ctx context.Context, req *connect.Request[v1.RevertParticipationRequest]) (*connect.Response[v1.RevertParticipationResponse], error) {
	return c.revertParticipation.CallUnary(ctx, req)
}

func (c *AdminServiceClient) RestoreParticipation(ctx context.Context, req *connect.Request[v1.RestoreParticipationRequest]) (*connect.Response[v1.RestoreParticipationResponse], error) {
	return c.restoreParticipation.CallUnary(ctx, req)
}

func (c *AdminServiceClient) GetDashboardStats(ctx context.Context, req *connect.Request[v1.GetDashboardStatsRequest]) (*connect.Response[v1.GetDashboardStatsResponse], error) {
	return c.getDashboardStats.CallUnary(ctx, req)
}

func (c *AdminServiceClient) Reconcile(ctx context.Context, req *connect.Request[v1.ReconcileRequest]) (*connect.Response[v1.ReconcileResponse], error) {
	return c.reconcile.CallUnary(ctx, req)
}
