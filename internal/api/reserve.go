package api

import (
	"github.com/labstack/echo"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
)

type quitRequest struct {
	IDs []uint64 `json:"ids"`
}

type governorRequest struct {
	Governor ledger.Address `json:"governor"`
}

type accrueRequest struct {
	Amount ledger.Amount `json:"amount"`
}

func (s *Server) Reserve(c echo.Context) error {
	return OK.SetData(s.deps.Reserve.State()).Build(c)
}

func (s *Server) Quit(c echo.Context) error {
	var req quitRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	paid, err := s.deps.Reserve.Quit(c.Request().Context(), caller(c), req.IDs)
	if err != nil {
		return s.fail(c, "quit", err)
	}
	return OK.SetData(map[string]ledger.Amount{"paid": paid}).Build(c)
}

func (s *Server) ClaimYield(c echo.Context) error {
	claimed, err := s.deps.Reserve.ClaimAllYield(c.Request().Context())
	if err != nil {
		return s.fail(c, "claim yield", err)
	}
	return OK.SetData(map[string]ledger.Amount{"claimed": claimed}).Build(c)
}

// AccrueYield reports returns earned off-ledger. Owner only.
func (s *Server) AccrueYield(c echo.Context) error {
	var req accrueRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	pending, err := s.deps.Reserve.AccrueYield(c.Request().Context(), caller(c), req.Amount)
	if err != nil {
		return s.fail(c, "accrue yield", err)
	}
	return OK.SetData(map[string]ledger.Amount{"pending": pending}).Build(c)
}

func (s *Server) SetGovernor(c echo.Context) error {
	var req governorRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	if err := s.deps.Reserve.SetGovernor(c.Request().Context(), caller(c), req.Governor); err != nil {
		return s.fail(c, "set governor", err)
	}
	return OK.SetData(req).Build(c)
}

func (s *Server) TransferReserveOwnership(c echo.Context) error {
	var req accountRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	if err := s.deps.Reserve.TransferOwnership(c.Request().Context(), caller(c), req.Account); err != nil {
		return s.fail(c, "transfer reserve ownership", err)
	}
	return OK.SetData(map[string]string{"component": model.ComponentReserve, "owner": req.Account.Hex()}).Build(c)
}
