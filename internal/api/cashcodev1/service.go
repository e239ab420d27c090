package cashcodev1

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// ServiceName is the fully-qualified name of the CashCodeService
const ServiceName = "cashcode.v1.CashCodeService"

// Procedure paths
const (
	RunDrawProcedure          = "/" + ServiceName + "/RunDraw"
	SubmitClaimProcedure      = "/" + ServiceName + "/SubmitClaim"
	RolloverWeekProcedure     = "/" + ServiceName + "/RolloverWeek"
	SweepExpiredProcedure     = "/" + ServiceName + "/SweepExpired"
	OpenWeekProcedure         = "/" + ServiceName + "/OpenWeek"
	IssueTicketProcedure      = "/" + ServiceName + "/IssueTicket"
	GetDrawProcedure          = "/" + ServiceName + "/GetDraw"
	CurrentWeekProcedure      = "/" + ServiceName + "/CurrentWeek"
	ListGhostWinnersProcedure = "/" + ServiceName + "/ListGhostWinners"
)

// ErrorKindHeader carries the domain failure kind on error responses
const ErrorKindHeader = "Cashcode-Error"

// CashCodeServiceHandler is implemented by the server
type CashCodeServiceHandler interface {
	RunDraw(context.Context, *connect.Request[RunDrawRequest]) (*connect.Response[RunDrawResponse], error)
	SubmitClaim(context.Context, *connect.Request[SubmitClaimRequest]) (*connect.Response[SubmitClaimResponse], error)
	RolloverWeek(context.Context, *connect.Request[RolloverWeekRequest]) (*connect.Response[RolloverWeekResponse], error)
	SweepExpired(context.Context, *connect.Request[SweepExpiredRequest]) (*connect.Response[SweepExpiredResponse], error)
	OpenWeek(context.Context, *connect.Request[OpenWeekRequest]) (*connect.Response[OpenWeekResponse], error)
	IssueTicket(context.Context, *connect.Request[IssueTicketRequest]) (*connect.Response[IssueTicketResponse], error)
	GetDraw(context.Context, *connect.Request[GetDrawRequest]) (*connect.Response[GetDrawResponse], error)
	CurrentWeek(context.Context, *connect.Request[CurrentWeekRequest]) (*connect.Response[CurrentWeekResponse], error)
	ListGhostWinners(context.Context, *connect.Request[ListGhostWinnersRequest]) (*connect.Response[ListGhostWinnersResponse], error)
}

// NewCashCodeServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewCashCodeServiceHandler(svc CashCodeServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(RunDrawProcedure, connect.NewUnaryHandler(RunDrawProcedure, svc.RunDraw, opts...))
	mux.Handle(SubmitClaimProcedure, connect.NewUnaryHandler(SubmitClaimProcedure, svc.SubmitClaim, opts...))
	mux.Handle(RolloverWeekProcedure, connect.NewUnaryHandler(RolloverWeekProcedure, svc.RolloverWeek, opts...))
	mux.Handle(SweepExpiredProcedure, connect.NewUnaryHandler(SweepExpiredProcedure, svc.SweepExpired, opts...))
	mux.Handle(OpenWeekProcedure, connect.NewUnaryHandler(OpenWeekProcedure, svc.OpenWeek, opts...))
	mux.Handle(IssueTicketProcedure, connect.NewUnaryHandler(IssueTicketProcedure, svc.IssueTicket, opts...))
	mux.Handle(GetDrawProcedure, connect.NewUnaryHandler(GetDrawProcedure, svc.GetDraw, opts...))
	mux.Handle(CurrentWeekProcedure, connect.NewUnaryHandler(CurrentWeekProcedure, svc.CurrentWeek, opts...))
	mux.Handle(ListGhostWinnersProcedure, connect.NewUnaryHandler(ListGhostWinnersProcedure, svc.ListGhostWinners, opts...))

	return "/" + ServiceName + "/", mux
}

// CashCodeServiceClient is a client for the CashCodeService
type CashCodeServiceClient interface {
	RunDraw(context.Context, *connect.Request[RunDrawRequest]) (*connect.Response[RunDrawResponse], error)
	SubmitClaim(context.Context, *connect.Request[SubmitClaimRequest]) (*connect.Response[SubmitClaimResponse], error)
	RolloverWeek(context.Context, *connect.Request[RolloverWeekRequest]) (*connect.Response[RolloverWeekResponse], error)
	SweepExpired(context.Context, *connect.Request[SweepExpiredRequest]) (*connect.Response[SweepExpiredResponse], error)
	OpenWeek(context.Context, *connect.Request[OpenWeekRequest]) (*connect.Response[OpenWeekResponse], error)
	IssueTicket(context.Context, *connect.Request[IssueTicketRequest]) (*connect.Response[IssueTicketResponse], error)
	GetDraw(context.Context, *connect.Request[GetDrawRequest]) (*connect.Response[GetDrawResponse], error)
	CurrentWeek(context.Context, *connect.Request[CurrentWeekRequest]) (*connect.Response[CurrentWeekResponse], error)
	ListGhostWinners(context.Context, *connect.Request[ListGhostWinnersRequest]) (*connect.Response[ListGhostWinnersResponse], error)
}

// NewCashCodeServiceClient constructs a client for the CashCodeService at baseURL
func NewCashCodeServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) CashCodeServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)

	return &cashCodeServiceClient{
		runDraw:          connect.NewClient[RunDrawRequest, RunDrawResponse](httpClient, baseURL+RunDrawProcedure, opts...),
		submitClaim:      connect.NewClient[SubmitClaimRequest, SubmitClaimResponse](httpClient, baseURL+SubmitClaimProcedure, opts...),
		rolloverWeek:     connect.NewClient[RolloverWeekRequest, RolloverWeekResponse](httpClient, baseURL+RolloverWeekProcedure, opts...),
		sweepExpired:     connect.NewClient[SweepExpiredRequest, SweepExpiredResponse](httpClient, baseURL+SweepExpiredProcedure, opts...),
		openWeek:         connect.NewClient[OpenWeekRequest, OpenWeekResponse](httpClient, baseURL+OpenWeekProcedure, opts...),
		issueTicket:      connect.NewClient[IssueTicketRequest, IssueTicketResponse](httpClient, baseURL+IssueTicketProcedure, opts...),
		getDraw:          connect.NewClient[GetDrawRequest, GetDrawResponse](httpClient, baseURL+GetDrawProcedure, opts...),
		currentWeek:      connect.NewClient[CurrentWeekRequest, CurrentWeekResponse](httpClient, baseURL+CurrentWeekProcedure, opts...),
		listGhostWinners: connect.NewClient[ListGhostWinnersRequest, ListGhostWinnersResponse](httpClient, baseURL+ListGhostWinnersProcedure, opts...),
	}
}

type cashCodeServiceClient struct {
	runDraw          *connect.Client[RunDrawRequest, RunDrawResponse]
	submitClaim      *connect.Client[SubmitClaimRequest, SubmitClaimResponse]
	rolloverWeek     *connect.Client[RolloverWeekRequest, RolloverWeekResponse]
	sweepExpired     *connect.Client[SweepExpiredRequest, SweepExpiredResponse]
	openWeek         *connect.Client[OpenWeekRequest, OpenWeekResponse]
	issueTicket      *connect.Client[IssueTicketRequest, IssueTicketResponse]
	getDraw          *connect.Client[GetDrawRequest, GetDrawResponse]
	currentWeek      *connect.Client[CurrentWeekRequest, CurrentWeekResponse]
	listGhostWinners *connect.Client[ListGhostWinnersRequest, ListGhostWinnersResponse]
}

func (c *cashCodeServiceClient) RunDraw(ctx context.Context, req *connect.Request[RunDrawRequest]) (*connect.Response[RunDrawResponse], error) {
	return c.runDraw.CallUnary(ctx, req)
}

func (c *cashCodeServiceClient) SubmitClaim(ctx context.Context, req *connect.Request[SubmitClaimRequest]) (*connect.Response[SubmitClaimResponse], error) {
	return c.submitClaim.CallUnary(ctx, req)
}

func (c *cashCodeServiceClient) RolloverWeek(ctx context.Context, req *connect.Request[RolloverWeekRequest]) (*connect.Response[RolloverWeekResponse], error) {
	return c.rolloverWeek.CallUnary(ctx, req)
}

func (c *cashCodeServiceClient) SweepExpired(ctx context.Context, req *connect.Request[SweepExpiredRequest]) (*connect.Response[SweepExpiredResponse], error) {
	return c.sweepExpired.CallUnary(ctx, req)
}

func (c *cashCodeServiceClient) OpenWeek(ctx context.Context, req *connect.Request[OpenWeekRequest]) (*connect.Response[OpenWeekResponse], error) {
	return c.openWeek.CallUnary(ctx, req)
}

func (c *cashCodeServiceClient) IssueTicket(ctx context.Context, req *connect.Request[IssueTicketRequest]) (*connect.Response[IssueTicketResponse], error) {
	return c.issueTicket.CallUnary(ctx, req)
}

func (c *cashCodeServiceClient) GetDraw(ctx context.Context, req *connect.Request[GetDrawRequest]) (*connect.Response[GetDrawResponse], error) {
	return c.getDraw.CallUnary(ctx, req)
}

func (c *cashCodeServiceClient) CurrentWeek(ctx context.Context, req *connect.Request[CurrentWeekRequest]) (*connect.Response[CurrentWeekResponse], error) {
	return c.currentWeek.CallUnary(ctx, req)
}

func (c *cashCodeServiceClient) ListGhostWinners(ctx context.Context, req *connect.Request[ListGhostWinnersRequest]) (*connect.Response[ListGhostWinnersResponse], error) {
	return c.listGhostWinners.CallUnary(ctx, req)
}
