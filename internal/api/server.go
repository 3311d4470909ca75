// Package api exposes the reserve, registry and governor over HTTP/JSON.
package api

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"go.uber.org/zap"

	"MemberReserve/internal/buyer"
	"MemberReserve/internal/governor"
	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
	"MemberReserve/internal/registry"
	"MemberReserve/internal/reserve"
	"MemberReserve/internal/yield"
)

// AccountHeader carries the calling account.
const AccountHeader = "X-Account"

const accountKey = "account"

// EventLister lists persisted events, newest first.
type EventLister interface {
	Events(ctx context.Context, kind string, limit int) ([]model.EventRecord, error)
}

// Deps are the components served by the API.
type Deps struct {
	Seq      *ledger.Sequencer
	Book     *ledger.Book
	Registry *registry.Registry
	Reserve  *reserve.Reserve
	Governor *governor.Governor
	Buyer    *buyer.Buyer
	Yield    *yield.Accumulator
	Events   EventLister
}

type Server struct {
	deps   Deps
	echo   *echo.Echo
	now    func() time.Time
	logger *zap.Logger
}

func New(deps Deps, debug bool, logger *zap.Logger) *Server {
	s := &Server{deps: deps, now: time.Now, logger: logger.Named("api")}

	e := echo.New()
	e.HideBanner = true
	e.Debug = debug
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.Gzip())
	e.Use(s.accessLog())

	bind(e.Group("/api/v1"), s)
	s.echo = e
	return s
}

// SetClock overrides the time source used for pricing and voting.
func (s *Server) SetClock(now func() time.Time) { s.now = now }

// Handler returns the underlying echo instance.
func (s *Server) Handler() *echo.Echo { return s.echo }

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) accessLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			s.logger.Debug("request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)))
			return nil
		}
	}
}

// requireAccount rejects requests without a valid calling account.
func requireAccount() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(AccountHeader)
			if raw == "" {
				return Unauthorized.SetMsg("missing " + AccountHeader + " header").Build(c)
			}
			addr, err := ledger.ParseAddress(raw)
			if err != nil {
				return Unauthorized.SetMsg(err.Error()).Build(c)
			}
			c.Set(accountKey, addr)
			return next(c)
		}
	}
}

func caller(c echo.Context) ledger.Address {
	addr, _ := c.Get(accountKey).(ledger.Address)
	return addr
}

// fail logs an operation failure and writes the matching response.
func (s *Server) fail(c echo.Context, op string, err error) error {
	resp := fromError(err)
	if resp.StatusCode >= 500 {
		s.logger.Error(op, zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	return resp.Build(c)
}

func parseUint(s string) (uint64, bool) {
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}

func (s *Server) Ping(c echo.Context) error {
	return OK.SetData(map[string]uint64{"seq": s.deps.Seq.Seq()}).Build(c)
}
