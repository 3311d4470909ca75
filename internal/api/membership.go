package api

import (
	"time"

	"github.com/labstack/echo"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
	"MemberReserve/internal/pricing"
)

type paymentRequest struct {
	Payment ledger.Amount `json:"payment"`
}

type transferRequest struct {
	IDs []uint64       `json:"ids"`
	To  ledger.Address `json:"to"`
}

type accountRequest struct {
	Account ledger.Address `json:"account"`
}

type floorRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) Price(c echo.Context) error {
	at := s.now()
	if raw := c.QueryParam("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Invalid.SetMsg("at must be RFC3339").Build(c)
		}
		at = t
	}
	type priceInfo struct {
		Price        ledger.Amount `json:"price"`
		Ether        string        `json:"ether"`
		At           time.Time     `json:"at"`
		FloorEnabled bool          `json:"floor_enabled"`
	}
	price := s.deps.Registry.Price(at)
	return OK.SetData(priceInfo{
		Price:        price,
		Ether:        price.Ether(),
		At:           at,
		FloorEnabled: s.deps.Registry.FloorEnabled(),
	}).Build(c)
}

func (s *Server) Mint(c echo.Context) error {
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	id, err := s.deps.Registry.Join(c.Request().Context(), caller(c), req.Payment, s.now())
	if err != nil {
		return s.fail(c, "mint", err)
	}
	return OK.SetData(map[string]uint64{"id": id}).Build(c)
}

func (s *Server) Buy(c echo.Context) error {
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	purchase, err := s.deps.Buyer.Buy(c.Request().Context(), caller(c), req.Payment, s.now())
	if err != nil {
		return s.fail(c, "buy", err)
	}
	return OK.SetData(purchase).Build(c)
}

func (s *Server) Record(c echo.Context) error {
	id, ok := parseUint(c.Param("id"))
	if !ok {
		return Invalid.SetMsg("id must be an unsigned integer").Build(c)
	}
	rec, err := s.deps.Registry.Record(id)
	if err != nil {
		return s.fail(c, "record", err)
	}
	return OK.SetData(rec).Build(c)
}

func (s *Server) TransferRecord(c echo.Context) error {
	id, ok := parseUint(c.Param("id"))
	if !ok {
		return Invalid.SetMsg("id must be an unsigned integer").Build(c)
	}
	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	if err := s.deps.Registry.Transfer(c.Request().Context(), caller(c), id, req.To); err != nil {
		return s.fail(c, "transfer", err)
	}
	return OK.Build(c)
}

func (s *Server) BatchTransfer(c echo.Context) error {
	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	if err := s.deps.Registry.BatchTransfer(c.Request().Context(), caller(c), req.IDs, req.To); err != nil {
		return s.fail(c, "batch transfer", err)
	}
	return OK.Build(c)
}

func (s *Server) Supply(c echo.Context) error {
	type supply struct {
		AdjustedTotalSupply uint64 `json:"adjusted_total_supply"`
		TotalIssued         uint64 `json:"total_issued"`
	}
	return OK.SetData(supply{
		AdjustedTotalSupply: s.deps.Registry.AdjustedTotalSupply(),
		TotalIssued:         s.deps.Registry.TotalIssued(),
	}).Build(c)
}

func (s *Server) Account(c echo.Context) error {
	addr, err := ledger.ParseAddress(c.Param("address"))
	if err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	type account struct {
		Address ledger.Address `json:"address"`
		Payouts ledger.Amount  `json:"payouts"`
		Records []uint64       `json:"records"`
		Weight  uint64         `json:"weight"`
	}
	resp := account{Address: addr, Records: s.deps.Registry.RecordsOf(addr), Weight: s.deps.Registry.BalanceOf(addr)}
	s.deps.Seq.View(func() { resp.Payouts = s.deps.Book.BalanceOf(addr) })
	return OK.SetData(resp).Build(c)
}

func (s *Server) SetFloor(c echo.Context) error {
	var req floorRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	if err := s.deps.Registry.SetFloorEnabled(c.Request().Context(), caller(c), req.Enabled); err != nil {
		return s.fail(c, "set floor", err)
	}
	return OK.SetData(req).Build(c)
}

func (s *Server) SetPricing(c echo.Context) error {
	var params pricing.Params
	if err := c.Bind(&params); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	if err := s.deps.Registry.SetPricing(c.Request().Context(), caller(c), params); err != nil {
		return s.fail(c, "set pricing", err)
	}
	return OK.SetData(params).Build(c)
}

func (s *Server) TransferRegistryOwnership(c echo.Context) error {
	var req accountRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	if err := s.deps.Registry.TransferOwnership(c.Request().Context(), caller(c), req.Account); err != nil {
		return s.fail(c, "transfer registry ownership", err)
	}
	return OK.SetData(map[string]string{"component": model.ComponentRegistry, "owner": req.Account.Hex()}).Build(c)
}
