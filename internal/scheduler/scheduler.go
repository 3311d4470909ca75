package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"MemberReserve/internal/governor"
	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
	"MemberReserve/internal/notifier"
	"MemberReserve/internal/registry"
	"MemberReserve/internal/reserve"
	"MemberReserve/internal/yield"
)

// Jobs configures the recurring tasks. An empty spec disables its task.
type Jobs struct {
	ClaimCron  string
	SettleCron string
	DripCron   string
	DripAmount ledger.Amount
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Registry *registry.Registry
	Reserve  *reserve.Reserve
	Governor *governor.Governor
	Yield    *yield.Accumulator
	Ctx      context.Context

	now func() time.Time
	log *zap.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, reg *registry.Registry, res *reserve.Reserve, gov *governor.Governor, acc *yield.Accumulator, log *zap.Logger) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Registry: reg,
		Reserve:  res,
		Governor: gov,
		Yield:    acc,
		Ctx:      ctx,
		now:      time.Now,
		log:      log.Named("scheduler"),
	}
}

// SetClock overrides the time source.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// RegisterAll registers the claim, settle and yield drip tasks.
func (s *Scheduler) RegisterAll(jobs Jobs) error {
	if jobs.ClaimCron != "" {
		if _, err := s.Cron.AddFunc(jobs.ClaimCron, s.ClaimTask); err != nil {
			return fmt.Errorf("register claim task: %w", err)
		}
	}
	if jobs.SettleCron != "" {
		if _, err := s.Cron.AddFunc(jobs.SettleCron, s.SettleTask); err != nil {
			return fmt.Errorf("register settle task: %w", err)
		}
	}
	if jobs.DripCron != "" && !jobs.DripAmount.IsZero() {
		amount := jobs.DripAmount
		if _, err := s.Cron.AddFunc(jobs.DripCron, func() { s.DripTask(amount) }); err != nil {
			return fmt.Errorf("register drip task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// ClaimTask sweeps pending yield.
func (s *Scheduler) ClaimTask() {
	amount, err := s.Reserve.ClaimAllYield(s.Ctx)
	if err != nil {
		s.log.Error("claim yield", zap.Error(err))
		return
	}
	if !amount.IsZero() {
		s.log.Info("yield claimed", zap.String("amount", amount.String()))
	}
}

// SettleTask closes the open proposal once its voting period is over.
func (s *Scheduler) SettleTask() {
	p, settled, err := s.Governor.SettleDue(s.Ctx, s.now())
	if err != nil {
		s.log.Error("settle proposal", zap.Error(err))
		return
	}
	if settled {
		s.log.Info("proposal settled",
			zap.Uint64("period", p.Period),
			zap.String("candidate", p.Candidate.Hex()),
			zap.String("status", string(p.Status)))
	}
}

// DripTask credits amount to the yield source.
func (s *Scheduler) DripTask(amount ledger.Amount) {
	if err := s.Yield.Accrue(amount); err != nil {
		s.log.Error("accrue yield", zap.Error(err))
	}
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	now := s.now()
	var name string
	if fields := strings.Fields(command); len(fields) > 0 {
		name = fields[0]
	}
	switch name {
	case "/status":
		return notifier.FormatReserveStatus(s.Reserve.State(), s.Registry.TotalIssued(), s.Registry.Price(now))
	case "/governance":
		var current *model.Proposal
		if p, ok := s.Governor.Current(); ok {
			current = &p
		}
		return notifier.FormatGovernance(s.Governor.State(), current, now)
	case "/price":
		return fmt.Sprintf("💰 Join price: %s ETH", s.Registry.Price(now).Ether())
	case "/claim":
		s.ClaimTask()
		return notifier.FormatReserveStatus(s.Reserve.State(), s.Registry.TotalIssued(), s.Registry.Price(now))
	default:
		return "Commands:\n• /status\n• /governance\n• /price\n• /claim"
	}
}
