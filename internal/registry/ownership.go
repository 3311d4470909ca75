package registry

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
	"MemberReserve/internal/pricing"
)

// Transfer moves record id from caller to another account.
func (r *Registry) Transfer(ctx context.Context, caller ledger.Address, id uint64, to ledger.Address) error {
	return r.BatchTransfer(ctx, caller, []uint64{id}, to)
}

// BatchTransfer moves every id from caller to to, or nothing.
func (r *Registry) BatchTransfer(ctx context.Context, caller ledger.Address, ids []uint64, to ledger.Address) error {
	err := r.seq.Do(ctx, func(j *ledger.Journal) error {
		// Records may be donated to the reserve, but never leave it.
		if caller == r.reserve {
			return model.ErrReserveCaller
		}
		return r.PlanTransfer(j, ids, caller, to)
	})
	if err != nil {
		return err
	}
	r.log.Info("records transferred", zap.Uint64s("ids", ids), zap.Stringer("from", caller), zap.Stringer("to", to))
	return nil
}

// PlanTransfer stages moving ids from from to to. Duplicates are reported before
// ownership so the caller learns the precise reason.
func (r *Registry) PlanTransfer(j *ledger.Journal, ids []uint64, from, to ledger.Address) error {
	if len(ids) == 0 {
		return model.ErrEmptyBatch
	}
	if to == ledger.ZeroAddress {
		return fmt.Errorf("%w: transfer to zero address", model.ErrInvalidArgument)
	}
	if from == to {
		return fmt.Errorf("%w: transfer to self", model.ErrInvalidArgument)
	}
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: id %d", model.ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		rec, err := r.record(id)
		if err != nil {
			return err
		}
		if rec.Owner != from {
			return fmt.Errorf("%w: id %d", model.ErrNotOwner, id)
		}
	}

	n := uint64(len(ids))
	moved := append([]uint64(nil), ids...)
	fromCp := model.Checkpoint{Seq: j.Seq, Balance: r.balances[from] - n}
	toCp := model.Checkpoint{Seq: j.Seq, Balance: r.balances[to] + n}

	j.Record(model.RecordsTransferred{IDs: moved, From: from, To: to})
	if from != r.reserve {
		j.Record(model.CheckpointWritten{Owner: from, Checkpoint: fromCp})
	}
	if to != r.reserve {
		j.Record(model.CheckpointWritten{Owner: to, Checkpoint: toCp})
	}
	j.OnCommit(func() {
		for _, id := range moved {
			r.records[id].Owner = to
		}
		r.balances[from] = fromCp.Balance
		r.balances[to] = toCp.Balance
		if from != r.reserve {
			r.checkpoints[from] = append(r.checkpoints[from], fromCp)
		}
		if to != r.reserve {
			r.checkpoints[to] = append(r.checkpoints[to], toCp)
		}
	})
	return nil
}

// balanceBefore returns the balance recorded by the last checkpoint older than seq.
func balanceBefore(cps []model.Checkpoint, seq uint64) uint64 {
	i := sort.Search(len(cps), func(i int) bool { return cps[i].Seq >= seq })
	if i == 0 {
		return 0
	}
	return cps[i-1].Balance
}

// Owner returns the administrative owner of the registry.
func (r *Registry) Owner() ledger.Address {
	var o ledger.Address
	r.seq.View(func() { o = r.owner })
	return o
}

// SetFloorEnabled toggles the reserve floor on the join price.
func (r *Registry) SetFloorEnabled(ctx context.Context, caller ledger.Address, enabled bool) error {
	err := r.seq.Do(ctx, func(j *ledger.Journal) error {
		if caller != r.owner {
			return model.ErrUnauthorized
		}
		j.Record(model.FloorSet{Enabled: enabled})
		j.OnCommit(func() { r.floorEnabled = enabled })
		return nil
	})
	if err != nil {
		return err
	}
	r.log.Info("floor updated", zap.Bool("enabled", enabled))
	return nil
}

// SetPricing replaces the auction parameters.
func (r *Registry) SetPricing(ctx context.Context, caller ledger.Address, params pricing.Params) error {
	curve, err := pricing.NewCurve(params)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidArgument, err)
	}
	err = r.seq.Do(ctx, func(j *ledger.Journal) error {
		if caller != r.owner {
			return model.ErrUnauthorized
		}
		j.Record(model.PricingSet{Params: params})
		j.OnCommit(func() { r.curve = curve })
		return nil
	})
	if err != nil {
		return err
	}
	r.log.Info("pricing updated",
		zap.Stringer("target", params.TargetPrice),
		zap.Stringer("decay", params.Decay),
		zap.Stringer("per_day", params.PerDay),
		zap.Time("reference_time", params.ReferenceTime))
	return nil
}

// TransferOwnership hands administrative control of the registry to another account.
func (r *Registry) TransferOwnership(ctx context.Context, caller, to ledger.Address) error {
	return r.seq.Do(ctx, func(j *ledger.Journal) error {
		return r.PlanTransferOwnership(j, caller, to)
	})
}

// PlanTransferOwnership stages an ownership change. caller must be the current owner.
func (r *Registry) PlanTransferOwnership(j *ledger.Journal, caller, to ledger.Address) error {
	if caller != r.owner {
		return model.ErrUnauthorized
	}
	if to == ledger.ZeroAddress {
		return fmt.Errorf("%w: new owner is the zero address", model.ErrInvalidArgument)
	}
	prev := r.owner
	j.Record(model.OwnerSet{Component: model.ComponentRegistry, Owner: to})
	j.Record(model.OwnershipTransferred{Component: model.ComponentRegistry, Previous: prev, Owner: to})
	j.OnCommit(func() {
		r.owner = to
		r.log.Info("ownership transferred", zap.Stringer("previous", prev), zap.Stringer("owner", to))
	})
	return nil
}
