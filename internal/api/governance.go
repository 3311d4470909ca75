package api

import (
	"strconv"

	"github.com/labstack/echo"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
)

type proposeRequest struct {
	Candidate ledger.Address `json:"candidate"`
}

type voteRequest struct {
	Candidate ledger.Address `json:"candidate"`
	// Support is for, against, abstain or 0/1/2.
	Support string `json:"support"`
}

func (s *Server) Governance(c echo.Context) error {
	type governance struct {
		State          model.GovernanceState `json:"state"`
		ProposalPeriod uint64                `json:"proposal_period"`
		Locked         bool                  `json:"locked"`
		Proposer       ledger.Address        `json:"proposer"`
		WeightMode     string                `json:"weight_mode"`
		Current        *model.Proposal       `json:"current,omitempty"`
	}
	g := s.deps.Governor
	resp := governance{
		State:          g.State(),
		ProposalPeriod: g.ProposalPeriod(),
		Locked:         g.Locked(),
		Proposer:       g.Proposer(),
		WeightMode:     string(g.WeightMode()),
	}
	if p, ok := g.Current(); ok {
		resp.Current = &p
	}
	return OK.SetData(resp).Build(c)
}

func (s *Server) Proposals(c echo.Context) error {
	return OK.SetData(s.deps.Governor.Proposals()).Build(c)
}

func (s *Server) Proposal(c echo.Context) error {
	candidate, err := ledger.ParseAddress(c.Param("candidate"))
	if err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	period, ok := parseUint(c.Param("period"))
	if !ok {
		return Invalid.SetMsg("period must be an unsigned integer").Build(c)
	}
	p, found := s.deps.Governor.Proposal(candidate, period)
	if !found {
		return NotFound.SetMsg("no such proposal").Build(c)
	}
	return OK.SetData(p).Build(c)
}

func (s *Server) Propose(c echo.Context) error {
	var req proposeRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	p, err := s.deps.Governor.Propose(c.Request().Context(), caller(c), req.Candidate, s.now())
	if err != nil {
		return s.fail(c, "propose", err)
	}
	return OK.SetData(p).Build(c)
}

func (s *Server) Vote(c echo.Context) error {
	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	support, err := model.ParseSupport(req.Support)
	if err != nil {
		return s.fail(c, "vote", err)
	}
	v, err := s.deps.Governor.Vote(c.Request().Context(), caller(c), req.Candidate, support, s.now())
	if err != nil {
		return s.fail(c, "vote", err)
	}
	return OK.SetData(v).Build(c)
}

func (s *Server) Settle(c echo.Context) error {
	var req proposeRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	p, err := s.deps.Governor.Settle(c.Request().Context(), req.Candidate, s.now())
	if err != nil {
		return s.fail(c, "settle", err)
	}
	return OK.SetData(p).Build(c)
}

func (s *Server) TransferProposer(c echo.Context) error {
	var req accountRequest
	if err := c.Bind(&req); err != nil {
		return Invalid.SetMsg(err.Error()).Build(c)
	}
	if err := s.deps.Governor.TransferProposer(c.Request().Context(), caller(c), req.Account); err != nil {
		return s.fail(c, "transfer proposer", err)
	}
	return OK.SetData(map[string]string{"component": model.ComponentGovernor, "owner": req.Account.Hex()}).Build(c)
}

func (s *Server) Events(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Invalid.SetMsg("limit must be a non-negative integer").Build(c)
		}
		limit = n
	}
	events, err := s.deps.Events.Events(c.Request().Context(), c.QueryParam("kind"), limit)
	if err != nil {
		return s.fail(c, "list events", err)
	}
	return OK.SetData(events).Build(c)
}
