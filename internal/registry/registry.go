package registry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
	"MemberReserve/internal/pricing"
)

// Vault is the reserve side of a join. Methods taking a journal run inside the
// sequencer's critical section; a nil journal reads committed state.
type Vault interface {
	Address() ledger.Address
	Balance(j *ledger.Journal) ledger.Amount
	Deposit(j *ledger.Journal, amount ledger.Amount) error
}

// Config is the deploy-time configuration of the registry.
type Config struct {
	Owner        ledger.Address
	Reserve      ledger.Address
	Pricing      pricing.Params
	FloorEnabled bool
}

// Registry owns the membership-record table and the pricing function.
type Registry struct {
	seq   *ledger.Sequencer
	log   *zap.Logger
	vault Vault

	reserve      ledger.Address
	owner        ledger.Address
	curve        *pricing.Curve
	floorEnabled bool

	records     []model.Record
	balances    map[ledger.Address]uint64
	checkpoints map[ledger.Address][]model.Checkpoint
}

// New creates an empty registry. AttachVault must be called before the first join.
func New(seq *ledger.Sequencer, cfg Config, log *zap.Logger) (*Registry, error) {
	if cfg.Owner == ledger.ZeroAddress {
		return nil, fmt.Errorf("registry owner is required")
	}
	if cfg.Reserve == ledger.ZeroAddress {
		return nil, fmt.Errorf("reserve address is required")
	}
	curve, err := pricing.NewCurve(cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("pricing: %w", err)
	}
	return &Registry{
		seq:          seq,
		log:          log.Named("registry"),
		reserve:      cfg.Reserve,
		owner:        cfg.Owner,
		curve:        curve,
		floorEnabled: cfg.FloorEnabled,
		balances:     make(map[ledger.Address]uint64),
		checkpoints:  make(map[ledger.Address][]model.Checkpoint),
	}, nil
}

// AttachVault wires the reserve. The reserve and the registry reference each other, so
// one of them has to be attached after both exist.
func (r *Registry) AttachVault(v Vault) {
	r.vault = v
}

// Restore loads persisted state. It must run before the registry serves requests.
func (r *Registry) Restore(snap *model.Snapshot) error {
	for i, rec := range snap.Records {
		if rec.ID != uint64(i) {
			return fmt.Errorf("record table has a gap at %d (found id %d)", i, rec.ID)
		}
		r.records = append(r.records, rec)
		r.balances[rec.Owner]++
	}
	for owner, cps := range snap.Checkpoints {
		r.checkpoints[owner] = append([]model.Checkpoint(nil), cps...)
	}
	if snap.RegistryOwner != ledger.ZeroAddress {
		r.owner = snap.RegistryOwner
	}
	if snap.FloorEnabled != nil {
		r.floorEnabled = *snap.FloorEnabled
	}
	if snap.Pricing != nil {
		curve, err := pricing.NewCurve(*snap.Pricing)
		if err != nil {
			return fmt.Errorf("restore pricing: %w", err)
		}
		r.curve = curve
	}
	return nil
}

// Price returns the current join price.
func (r *Registry) Price(now time.Time) ledger.Amount {
	var price ledger.Amount
	r.seq.View(func() { price = r.Quote(nil, now) })
	return price
}

// Quote computes the join price inside an operation.
func (r *Registry) Quote(j *ledger.Journal, now time.Time) ledger.Amount {
	auction := r.curve.Price(now, uint64(len(r.records)))
	return pricing.Quote(auction, r.bookValue(j), r.floorEnabled)
}

// bookValue is reserve balance over adjusted supply, zero while nobody holds a record.
func (r *Registry) bookValue(j *ledger.Journal) ledger.Amount {
	supply := r.Supply(j)
	if supply == 0 || r.vault == nil {
		return ledger.Amount{}
	}
	return r.vault.Balance(j).DivUint64(supply)
}

// Join issues a record to caller for payment and forwards the payment to the reserve.
func (r *Registry) Join(ctx context.Context, caller ledger.Address, payment ledger.Amount, now time.Time) (uint64, error) {
	var id uint64
	err := r.seq.Do(ctx, func(j *ledger.Journal) error {
		var err error
		id, err = r.PlanJoin(j, caller, payment, now)
		return err
	})
	if err != nil {
		r.log.Debug("join rejected", zap.Stringer("caller", caller), zap.Stringer("payment", payment), zap.Error(err))
		return 0, err
	}
	r.log.Info("joined", zap.Uint64("id", id), zap.Stringer("member", caller), zap.Stringer("payment", payment))
	return id, nil
}

// PlanJoin stages a join. At most one join may be staged per journal.
func (r *Registry) PlanJoin(j *ledger.Journal, caller ledger.Address, payment ledger.Amount, now time.Time) (uint64, error) {
	if r.vault == nil {
		return 0, fmt.Errorf("registry has no reserve attached")
	}
	if caller == ledger.ZeroAddress {
		return 0, fmt.Errorf("%w: zero caller", model.ErrInvalidArgument)
	}
	if caller == r.reserve {
		return 0, model.ErrReserveCaller
	}
	if !r.curve.Started(now) {
		return 0, model.ErrMintNotStarted
	}
	price := r.Quote(j, now)
	if payment.Lt(price) {
		return 0, fmt.Errorf("%w: paid %s, price %s", model.ErrInsufficientPayment, payment, price)
	}
	if err := r.vault.Deposit(j, payment); err != nil {
		return 0, fmt.Errorf("deposit: %w", err)
	}

	rec := model.Record{
		ID:           uint64(len(r.records)),
		Owner:        caller,
		Contribution: payment,
		IssuedAt:     now,
	}
	cp := model.Checkpoint{Seq: j.Seq, Balance: r.balances[caller] + 1}
	j.Record(model.RecordIssued{Record: rec})
	j.Record(model.CheckpointWritten{Owner: caller, Checkpoint: cp})
	j.Record(model.Joined{ID: rec.ID, Member: caller, Price: payment})
	j.OnCommit(func() {
		r.records = append(r.records, rec)
		r.balances[caller] = cp.Balance
		r.checkpoints[caller] = append(r.checkpoints[caller], cp)
	})
	return rec.ID, nil
}

// Record returns an issued record.
func (r *Registry) Record(id uint64) (model.Record, error) {
	var (
		rec model.Record
		err error
	)
	r.seq.View(func() { rec, err = r.record(id) })
	return rec, err
}

func (r *Registry) record(id uint64) (model.Record, error) {
	if id >= uint64(len(r.records)) {
		return model.Record{}, fmt.Errorf("%w: id %d", model.ErrNotFound, id)
	}
	return r.records[id], nil
}

// ContributionOf returns what was paid for record id.
func (r *Registry) ContributionOf(id uint64) (ledger.Amount, error) {
	rec, err := r.Record(id)
	if err != nil {
		return ledger.Amount{}, err
	}
	return rec.Contribution, nil
}

// OwnerOf returns the current holder of record id.
func (r *Registry) OwnerOf(id uint64) (ledger.Address, error) {
	rec, err := r.Record(id)
	if err != nil {
		return ledger.ZeroAddress, err
	}
	return rec.Owner, nil
}

// BalanceOf returns the number of records held by account.
func (r *Registry) BalanceOf(account ledger.Address) uint64 {
	var n uint64
	r.seq.View(func() { n = r.balances[account] })
	return n
}

// RecordsOf lists the ids held by account in issue order.
func (r *Registry) RecordsOf(account ledger.Address) []uint64 {
	var ids []uint64
	r.seq.View(func() {
		for _, rec := range r.records {
			if rec.Owner == account {
				ids = append(ids, rec.ID)
			}
		}
	})
	return ids
}

// TotalIssued returns the number of records ever issued.
func (r *Registry) TotalIssued() uint64 {
	var n uint64
	r.seq.View(func() { n = uint64(len(r.records)) })
	return n
}

// AdjustedTotalSupply counts records not held by the reserve.
func (r *Registry) AdjustedTotalSupply() uint64 {
	var n uint64
	r.seq.View(func() { n = r.Supply(nil) })
	return n
}

// Supply is AdjustedTotalSupply inside an operation.
func (r *Registry) Supply(_ *ledger.Journal) uint64 {
	return uint64(len(r.records)) - r.balances[r.reserve]
}

// Weight is a voter's current record balance.
func (r *Registry) Weight(_ *ledger.Journal, voter ledger.Address) uint64 {
	return r.balances[voter]
}

// WeightAt is a voter's record balance as of the end of the last journal before seq.
func (r *Registry) WeightAt(_ *ledger.Journal, voter ledger.Address, seq uint64) uint64 {
	return balanceBefore(r.checkpoints[voter], seq)
}

// FloorEnabled reports whether the reserve floor applies to the price.
func (r *Registry) FloorEnabled() bool {
	var on bool
	r.seq.View(func() { on = r.floorEnabled })
	return on
}

// PricingParams returns the auction configuration in force.
func (r *Registry) PricingParams() pricing.Params {
	var p pricing.Params
	r.seq.View(func() { p = r.curve.Params() })
	return p
}
