package ledger

// BookEntry is the durable form of a payout-book balance change.
type BookEntry struct {
	Account Address
	Balance Amount
}

func (BookEntry) ChangeKind() string { return "book_entry" }

// Book tracks native funds the mechanism has paid out, per receiving account:
// exit payouts, yield forwarded to a governor address, and buyer refunds.
// Book state is guarded by the owning Sequencer.
type Book struct {
	balances map[Address]Amount
}

// NewBook restores a book from persisted balances.
func NewBook(balances map[Address]Amount) *Book {
	b := &Book{balances: make(map[Address]Amount, len(balances))}
	for k, v := range balances {
		b.balances[k] = v
	}
	return b
}

func bookKey(a Address) string { return "book:" + a.Hex() }

// Credit stages a payout of amount to account.
func (b *Book) Credit(j *Journal, account Address, amount Amount) error {
	if amount.IsZero() {
		return nil
	}
	key := bookKey(account)
	next, err := j.Staged(key, b.balances[account]).Add(amount)
	if err != nil {
		return err
	}
	j.Stage(key, next)
	j.Record(BookEntry{Account: account, Balance: next})
	j.OnCommit(func() { b.balances[account] = next })
	return nil
}

// BalanceOf returns the total paid out to account. Callers hold the sequencer.
func (b *Book) BalanceOf(account Address) Amount {
	return b.balances[account]
}
