package api

import (
	"github.com/labstack/echo"
)

type restDefinition struct {
	method      string
	path        string
	fn          func(c echo.Context) error
	middlewares []echo.MiddlewareFunc
}

func bind(gr *echo.Group, srv *Server) {
	apis := []restDefinition{
		{
			method: echo.GET,
			path:   "/ping",
			fn:     srv.Ping,
		},
		// Membership
		{
			method: echo.GET,
			// Query params: ?at=RFC3339
			path: "/price",
			fn:   srv.Price,
		},
		{
			method:      echo.POST,
			path:        "/mint",
			fn:          srv.Mint,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		{
			method:      echo.POST,
			path:        "/buy",
			fn:          srv.Buy,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		{
			method: echo.GET,
			path:   "/records/:id",
			fn:     srv.Record,
		},
		{
			method:      echo.POST,
			path:        "/records/:id/transfer",
			fn:          srv.TransferRecord,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		{
			method:      echo.POST,
			path:        "/records/transfer",
			fn:          srv.BatchTransfer,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		{
			method: echo.GET,
			path:   "/supply",
			fn:     srv.Supply,
		},
		{
			method: echo.GET,
			path:   "/accounts/:address",
			fn:     srv.Account,
		},
		// Registry administration
		{
			method:      echo.PUT,
			path:        "/registry/floor",
			fn:          srv.SetFloor,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		{
			method:      echo.PUT,
			path:        "/registry/pricing",
			fn:          srv.SetPricing,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		{
			method:      echo.PUT,
			path:        "/registry/owner",
			fn:          srv.TransferRegistryOwnership,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		// Reserve
		{
			method: echo.GET,
			path:   "/reserve",
			fn:     srv.Reserve,
		},
		{
			method:      echo.POST,
			path:        "/reserve/quit",
			fn:          srv.Quit,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		{
			method: echo.POST,
			path:   "/reserve/yield/claim",
			fn:     srv.ClaimYield,
		},
		{
			method:      echo.POST,
			path:        "/reserve/yield/accrue",
			fn:          srv.AccrueYield,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		{
			method:      echo.PUT,
			path:        "/reserve/governor",
			fn:          srv.SetGovernor,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		{
			method:      echo.PUT,
			path:        "/reserve/owner",
			fn:          srv.TransferReserveOwnership,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		// Governance
		{
			method: echo.GET,
			path:   "/governance",
			fn:     srv.Governance,
		},
		{
			method: echo.GET,
			path:   "/governance/proposals",
			fn:     srv.Proposals,
		},
		{
			method: echo.GET,
			path:   "/governance/proposals/:candidate/:period",
			fn:     srv.Proposal,
		},
		{
			method:      echo.POST,
			path:        "/governance/propose",
			fn:          srv.Propose,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		{
			method:      echo.POST,
			path:        "/governance/vote",
			fn:          srv.Vote,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		{
			method: echo.POST,
			path:   "/governance/settle",
			fn:     srv.Settle,
		},
		{
			method:      echo.PUT,
			path:        "/governance/proposer",
			fn:          srv.TransferProposer,
			middlewares: []echo.MiddlewareFunc{requireAccount()},
		},
		// Query params: ?kind=Joined&limit=50
		{
			method: echo.GET,
			path:   "/events",
			fn:     srv.Events,
		},
	}
	for _, api := range apis {
		gr.Add(api.method, api.path, api.fn, api.middlewares...)
	}
}
