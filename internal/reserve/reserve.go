package reserve

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
)

const balanceKey = "reserve:balance"

// Members is the registry as seen from the reserve.
type Members interface {
	Supply(j *ledger.Journal) uint64
	PlanTransfer(j *ledger.Journal, ids []uint64, from, to ledger.Address) error
}

// YieldSource is where yield accrues outside the reserve balance.
type YieldSource interface {
	Accrue(amount ledger.Amount) error
	Pending(ctx context.Context) (ledger.Amount, error)
	Claimed(amount ledger.Amount)
}

// Config is the deploy-time configuration of the reserve.
type Config struct {
	Address  ledger.Address
	Owner    ledger.Address
	Governor ledger.Address
}

// State is a consistent read of the reserve.
type State struct {
	Balance              ledger.Amount  `json:"balance"`
	BookValue            ledger.Amount  `json:"book_value"`
	AdjustedSupply       uint64         `json:"adjusted_supply"`
	Owner                ledger.Address `json:"owner"`
	Governor             ledger.Address `json:"governor"`
	YieldRecipientLocked bool           `json:"yield_recipient_locked"`
}

// Reserve holds pooled membership payments and pays pro-rata exits.
type Reserve struct {
	seq     *ledger.Sequencer
	log     *zap.Logger
	members Members
	yield   YieldSource
	book    *ledger.Book

	addr     ledger.Address
	owner    ledger.Address
	governor ledger.Address
	balance  ledger.Amount
}

func New(seq *ledger.Sequencer, cfg Config, members Members, yield YieldSource, book *ledger.Book, log *zap.Logger) (*Reserve, error) {
	if cfg.Address == ledger.ZeroAddress {
		return nil, fmt.Errorf("reserve address is required")
	}
	if cfg.Owner == ledger.ZeroAddress {
		return nil, fmt.Errorf("reserve owner is required")
	}
	return &Reserve{
		seq:      seq,
		log:      log.Named("reserve"),
		members:  members,
		yield:    yield,
		book:     book,
		addr:     cfg.Address,
		owner:    cfg.Owner,
		governor: cfg.Governor,
	}, nil
}

// Restore loads persisted state. It must run before the reserve serves requests.
func (r *Reserve) Restore(snap *model.Snapshot) {
	r.balance = snap.ReserveBalance
	if snap.ReserveOwner != ledger.ZeroAddress {
		r.owner = snap.ReserveOwner
	}
	if snap.Governor != ledger.ZeroAddress {
		r.governor = snap.Governor
	}
}

// Address is the account the reserve holds records under.
func (r *Reserve) Address() ledger.Address { return r.addr }

// Balance is the pooled balance inside an operation, including staged deposits.
func (r *Reserve) Balance(j *ledger.Journal) ledger.Amount {
	return j.Staged(balanceKey, r.balance)
}

// Deposit stages a credit to the pooled balance.
func (r *Reserve) Deposit(j *ledger.Journal, amount ledger.Amount) error {
	next, err := r.Balance(j).Add(amount)
	if err != nil {
		return err
	}
	r.setBalance(j, next)
	return nil
}

func (r *Reserve) debit(j *ledger.Journal, amount ledger.Amount) error {
	next, err := r.Balance(j).Sub(amount)
	if err != nil {
		return err
	}
	r.setBalance(j, next)
	return nil
}

func (r *Reserve) setBalance(j *ledger.Journal, v ledger.Amount) {
	j.Stage(balanceKey, v)
	j.Record(model.ReserveBalanceSet{Balance: v})
	j.OnCommit(func() { r.balance = v })
}

// bookValue is balance over adjusted supply, truncated. Zero when supply is zero.
func (r *Reserve) bookValue(j *ledger.Journal) ledger.Amount {
	return r.Balance(j).DivUint64(r.members.Supply(j))
}

// State returns a consistent view of balance, book value and settings.
func (r *Reserve) State() State {
	var s State
	r.seq.View(func() {
		s = State{
			Balance:              r.balance,
			BookValue:            r.bookValue(nil),
			AdjustedSupply:       r.members.Supply(nil),
			Owner:                r.owner,
			Governor:             r.governor,
			YieldRecipientLocked: r.governor != ledger.ZeroAddress,
		}
	})
	return s
}

// BookValue returns the current exit amount per record.
func (r *Reserve) BookValue() ledger.Amount {
	return r.State().BookValue
}

// Quit hands ids to the reserve and pays caller book value for each of them.
// Book value is taken from the supply before the transfer.
func (r *Reserve) Quit(ctx context.Context, caller ledger.Address, ids []uint64) (ledger.Amount, error) {
	var paid ledger.Amount
	err := r.seq.Do(ctx, func(j *ledger.Journal) error {
		if caller == r.addr {
			return model.ErrReserveCaller
		}
		if len(ids) == 0 {
			return model.ErrEmptyBatch
		}
		value := r.bookValue(j)
		if err := r.members.PlanTransfer(j, ids, caller, r.addr); err != nil {
			return err
		}
		amount, err := value.MulUint64(uint64(len(ids)))
		if err != nil {
			return err
		}
		if err := r.debit(j, amount); err != nil {
			return fmt.Errorf("pay %s: %w", amount, err)
		}
		if err := r.book.Credit(j, caller, amount); err != nil {
			return err
		}
		j.Record(model.Quit{Member: caller, IDs: append([]uint64(nil), ids...), Amount: amount})
		paid = amount
		return nil
	})
	if err != nil {
		r.log.Debug("quit rejected", zap.Stringer("caller", caller), zap.Uint64s("ids", ids), zap.Error(err))
		return ledger.Amount{}, err
	}
	r.log.Info("member quit", zap.Stringer("member", caller), zap.Uint64s("ids", ids), zap.Stringer("paid", paid))
	return paid, nil
}

// ClaimAllYield moves pending yield to the governor address if one is set, otherwise
// into the pooled balance. Anyone may call it.
func (r *Reserve) ClaimAllYield(ctx context.Context) (ledger.Amount, error) {
	var (
		claimed   ledger.Amount
		recipient ledger.Address
	)
	err := r.seq.Do(ctx, func(j *ledger.Journal) error {
		pending, err := r.yield.Pending(ctx)
		if err != nil {
			return fmt.Errorf("read pending yield: %w", err)
		}
		if pending.IsZero() {
			return nil
		}
		recipient = r.governor
		if recipient != ledger.ZeroAddress {
			if err := r.book.Credit(j, recipient, pending); err != nil {
				return err
			}
		} else {
			recipient = r.addr
			if err := r.Deposit(j, pending); err != nil {
				return err
			}
		}
		j.Record(model.YieldClaimed{Amount: pending, Recipient: recipient, ToReserve: recipient == r.addr})
		j.OnCommit(func() { r.yield.Claimed(pending) })
		claimed = pending
		return nil
	})
	if err != nil {
		return ledger.Amount{}, err
	}
	if !claimed.IsZero() {
		r.log.Info("yield claimed", zap.Stringer("amount", claimed), zap.Stringer("recipient", recipient))
	}
	return claimed, nil
}

// AccrueYield records yield earned outside the mechanism. Only the owner may report it,
// since claimed yield becomes exit value.
func (r *Reserve) AccrueYield(ctx context.Context, caller ledger.Address, amount ledger.Amount) (ledger.Amount, error) {
	err := r.seq.Do(ctx, func(*ledger.Journal) error {
		if caller != r.owner {
			return model.ErrUnauthorized
		}
		return r.yield.Accrue(amount)
	})
	if err != nil {
		r.log.Debug("accrue rejected", zap.Stringer("caller", caller), zap.Stringer("amount", amount), zap.Error(err))
		return ledger.Amount{}, err
	}
	return r.yield.Pending(ctx)
}

// SetGovernor sets (or with the zero address clears) where yield is forwarded.
func (r *Reserve) SetGovernor(ctx context.Context, caller, governor ledger.Address) error {
	err := r.seq.Do(ctx, func(j *ledger.Journal) error {
		if caller != r.owner {
			return model.ErrUnauthorized
		}
		j.Record(model.GovernorAddressSet{Governor: governor})
		j.Record(model.GovernorSet{Governor: governor})
		j.OnCommit(func() { r.governor = governor })
		return nil
	})
	if err != nil {
		return err
	}
	r.log.Info("governor set", zap.Stringer("governor", governor))
	return nil
}

// Governor returns the yield recipient, or the zero address.
func (r *Reserve) Governor() ledger.Address { return r.State().Governor }

// Owner returns the administrative owner of the reserve.
func (r *Reserve) Owner() ledger.Address { return r.State().Owner }

// TransferOwnership hands administrative control of the reserve to another account.
func (r *Reserve) TransferOwnership(ctx context.Context, caller, to ledger.Address) error {
	return r.seq.Do(ctx, func(j *ledger.Journal) error {
		return r.PlanTransferOwnership(j, caller, to)
	})
}

// PlanTransferOwnership stages an ownership change. caller must be the current owner.
func (r *Reserve) PlanTransferOwnership(j *ledger.Journal, caller, to ledger.Address) error {
	if caller != r.owner {
		return model.ErrUnauthorized
	}
	if to == ledger.ZeroAddress {
		return fmt.Errorf("%w: new owner is the zero address", model.ErrInvalidArgument)
	}
	prev := r.owner
	j.Record(model.OwnerSet{Component: model.ComponentReserve, Owner: to})
	j.Record(model.OwnershipTransferred{Component: model.ComponentReserve, Previous: prev, Owner: to})
	j.OnCommit(func() {
		r.owner = to
		r.log.Info("ownership transferred", zap.Stringer("previous", prev), zap.Stringer("owner", to))
	})
	return nil
}
