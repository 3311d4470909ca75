// Package app builds the mechanism from configuration and runs its services.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"MemberReserve/internal/api"
	"MemberReserve/internal/buyer"
	"MemberReserve/internal/config"
	"MemberReserve/internal/governor"
	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
	"MemberReserve/internal/notifier"
	"MemberReserve/internal/pricing"
	"MemberReserve/internal/registry"
	"MemberReserve/internal/reserve"
	"MemberReserve/internal/scheduler"
	"MemberReserve/internal/store"
	"MemberReserve/internal/yield"
)

const shutdownTimeout = 10 * time.Second

// App holds every wired component.
type App struct {
	cfg *config.Config
	log *zap.Logger

	Store     store.Store
	Seq       *ledger.Sequencer
	Book      *ledger.Book
	Yield     *yield.Accumulator
	Registry  *registry.Registry
	Reserve   *reserve.Reserve
	Governor  *governor.Governor
	Buyer     *buyer.Buyer
	API       *api.Server
	Scheduler *scheduler.Scheduler

	telegram *notifier.Bot
	feed     *notifier.Feed
}

// OpenStore opens the backend selected by cfg.Database.Driver.
func OpenStore(cfg config.Database, log *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		return store.OpenSQLite(cfg.SQLitePath, log)
	case "file":
		if err := ensureDir(cfg.StateFile); err != nil {
			return nil, err
		}
		return store.OpenFile(cfg.StateFile)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	return nil
}

// New opens the store, seeds it on first start and restores every component from it.
// now stamps the genesis state when the config leaves the reference time unset.
func New(ctx context.Context, cfg *config.Config, st store.Store, now time.Time, log *zap.Logger) (*App, error) {
	snap, err := st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	params := pricing.Params{
		TargetPrice:   cfg.Pricing.TargetPrice,
		Decay:         cfg.Pricing.Decay,
		PerDay:        cfg.Pricing.PerDay,
		ReferenceTime: cfg.Pricing.ReferenceTime,
	}
	if params.ReferenceTime.IsZero() {
		params.ReferenceTime = now
	}
	floor := cfg.Pricing.FloorEnabled == nil || *cfg.Pricing.FloorEnabled

	a := &App{cfg: cfg, log: log, Store: st}
	a.Seq = ledger.NewSequencer(st, snap.Seq)

	if snap.Seq == 0 {
		if err := a.genesis(ctx, params, floor); err != nil {
			return nil, err
		}
		if snap, err = st.Load(ctx); err != nil {
			return nil, fmt.Errorf("reload state: %w", err)
		}
	}

	a.Book = ledger.NewBook(snap.Book)
	a.Yield = yield.NewAccumulator(log)

	a.Registry, err = registry.New(a.Seq, registry.Config{
		Owner:        cfg.Accounts.Owner,
		Reserve:      cfg.Accounts.Reserve,
		Pricing:      params,
		FloorEnabled: floor,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	a.Reserve, err = reserve.New(a.Seq, reserve.Config{
		Address: cfg.Accounts.Reserve,
		Owner:   cfg.Accounts.Owner,
	}, a.Registry, a.Yield, a.Book, log)
	if err != nil {
		return nil, fmt.Errorf("reserve: %w", err)
	}
	a.Registry.AttachVault(a.Reserve)

	a.Governor, err = governor.New(a.Seq, governor.Config{
		Address:      cfg.Accounts.Governor,
		Proposer:     cfg.Governance.Proposer,
		QuorumBps:    cfg.Governance.QuorumBps,
		VotingPeriod: cfg.Governance.VotingPeriod,
		WeightMode:   governor.WeightMode(cfg.Governance.WeightMode),
	}, a.Registry, []governor.Controlled{a.Registry, a.Reserve}, log)
	if err != nil {
		return nil, fmt.Errorf("governor: %w", err)
	}
	a.Buyer = buyer.New(a.Seq, a.Registry, a.Book, log)

	if err := a.Registry.Restore(snap); err != nil {
		return nil, fmt.Errorf("restore registry: %w", err)
	}
	a.Reserve.Restore(snap)
	a.Governor.Restore(snap)

	a.warnControl()

	a.API = api.New(api.Deps{
		Seq:      a.Seq,
		Book:     a.Book,
		Registry: a.Registry,
		Reserve:  a.Reserve,
		Governor: a.Governor,
		Buyer:    a.Buyer,
		Yield:    a.Yield,
		Events:   st,
	}, cfg.Server.Debug, log)

	a.Scheduler = scheduler.NewScheduler(ctx, a.Registry, a.Reserve, a.Governor, a.Yield, log)
	if err := a.Scheduler.RegisterAll(scheduler.Jobs{
		ClaimCron:  cfg.Schedule.ClaimCron,
		SettleCron: cfg.Schedule.SettleCron,
		DripCron:   cfg.Yield.DripCron,
		DripAmount: cfg.Yield.DripAmount,
	}); err != nil {
		return nil, err
	}

	if cfg.Telegram.Enabled() {
		a.telegram = notifier.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		a.feed = notifier.NewFeed(a.telegram, 0, log)
		a.Seq.Subscribe(a.feed.Listen)
	}

	log.Info("state restored",
		zap.Uint64("seq", snap.Seq),
		zap.Int("records", len(snap.Records)),
		zap.Stringer("reserve_balance", snap.ReserveBalance),
		zap.String("governance", string(a.Governor.State())))
	return a, nil
}

// warnControl flags an unlocked governor that cannot hand over control: settlement
// transfers ownership as the governor account, so it must own both components.
func (a *App) warnControl() {
	if a.Governor.Locked() {
		return
	}
	gov := a.Governor.Address()
	for _, c := range []struct {
		name  string
		owner ledger.Address
		route string
	}{
		{model.ComponentRegistry, a.Registry.Owner(), "PUT /api/v1/registry/owner"},
		{model.ComponentReserve, a.Reserve.Owner(), "PUT /api/v1/reserve/owner"},
	} {
		if c.owner != gov {
			a.log.Warn("governor does not own component; a passing proposal cannot settle until ownership is handed over",
				zap.String("component", c.name),
				zap.Stringer("owner", c.owner),
				zap.Stringer("governor", gov),
				zap.String("route", c.route))
		}
	}
}

// genesis persists the settings later restarts must not re-derive from config, such as
// a reference time that defaulted to the first start.
func (a *App) genesis(ctx context.Context, params pricing.Params, floor bool) error {
	accounts := a.cfg.Accounts
	err := a.Seq.Do(ctx, func(j *ledger.Journal) error {
		j.Record(model.PricingSet{Params: params})
		j.Record(model.FloorSet{Enabled: floor})
		j.Record(model.OwnerSet{Component: model.ComponentRegistry, Owner: accounts.Owner})
		j.Record(model.OwnerSet{Component: model.ComponentReserve, Owner: accounts.Owner})
		j.Record(model.OwnerSet{Component: model.ComponentGovernor, Owner: a.cfg.Governance.Proposer})
		if accounts.YieldRecipient != ledger.ZeroAddress {
			j.Record(model.GovernorAddressSet{Governor: accounts.YieldRecipient})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write genesis state: %w", err)
	}
	a.log.Info("genesis state written",
		zap.Time("reference_time", params.ReferenceTime),
		zap.Stringer("owner", accounts.Owner),
		zap.Stringer("proposer", a.cfg.Governance.Proposer))
	return nil
}

// Run serves HTTP, runs the cron jobs and the Telegram feed until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.Scheduler.Start()
	defer a.Scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)
	if a.telegram != nil {
		g.Go(func() error {
			a.feed.Run(ctx)
			return nil
		})
		g.Go(func() error {
			a.telegram.StartPolling(ctx, a.Scheduler.HandleCommand)
			return nil
		})
	}
	g.Go(func() error {
		if err := a.API.Start(a.cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.API.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
