package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"MemberReserve/internal/ledger"
	"MemberReserve/internal/model"
	"MemberReserve/internal/pricing"
)

// kv keys for scalar state.
const (
	keySeq            = "seq"
	keyReserveBalance = "reserve_balance"
	keyGovernor       = "governor_address"
	keyFloor          = "floor_enabled"
	keyPricing        = "pricing"
	keyLocked         = "locked"
	keyOwnerPrefix    = "owner:"
)

// SQLite persists every journal in a single transaction.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (or creates) the database and runs migrations.
func OpenSQLite(dbPath string, log *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the sequencer already serializes commits.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}

	s := &SQLite{db: db, log: log.Named("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.log.Info("sqlite store opened", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			name  TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS records (
			id           INTEGER PRIMARY KEY,
			owner        TEXT NOT NULL,
			contribution TEXT NOT NULL,
			issued_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_owner ON records(owner)`,

		`CREATE TABLE IF NOT EXISTS checkpoints (
			owner   TEXT NOT NULL,
			seq     INTEGER NOT NULL,
			balance INTEGER NOT NULL,
			PRIMARY KEY (owner, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS proposals (
			period        INTEGER PRIMARY KEY,
			candidate     TEXT NOT NULL,
			quorum        INTEGER NOT NULL,
			for_votes     INTEGER NOT NULL,
			against_votes INTEGER NOT NULL,
			abstain_votes INTEGER NOT NULL,
			start_time    INTEGER NOT NULL,
			end_time      INTEGER NOT NULL,
			snapshot_seq  INTEGER NOT NULL,
			status        TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS votes (
			period  INTEGER NOT NULL,
			voter   TEXT NOT NULL,
			support INTEGER NOT NULL,
			weight  INTEGER NOT NULL,
			PRIMARY KEY (period, voter)
		)`,

		`CREATE TABLE IF NOT EXISTS accounts (
			address TEXT PRIMARY KEY,
			balance TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			id      TEXT PRIMARY KEY,
			seq     INTEGER NOT NULL,
			kind    TEXT NOT NULL,
			payload TEXT NOT NULL,
			ts      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_seq ON events(seq)`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)`,
	}

	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return fmt.Errorf("exec %q: %w", st[:40], err)
		}
	}
	return nil
}

// Commit writes every change of j, or none of them.
func (s *SQLite) Commit(ctx context.Context, j *ledger.Journal) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, c := range j.Changes() {
		if err = s.write(ctx, tx, j, c); err != nil {
			return fmt.Errorf("write %s: %w", c.ChangeKind(), err)
		}
	}
	if err = putKV(ctx, tx, keySeq, strconv.FormatUint(j.Seq, 10)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLite) write(ctx context.Context, tx *sql.Tx, j *ledger.Journal, c ledger.Change) error {
	switch c := c.(type) {
	case model.Event:
		rec, err := eventRecord(j.Seq, j.Time, c)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO events (id, seq, kind, payload, ts) VALUES (?,?,?,?,?)`,
			rec.ID, rec.Seq, rec.Kind, string(rec.Payload), rec.Time.UnixNano())
		return err
	case model.RecordIssued:
		r := c.Record
		_, err := tx.ExecContext(ctx, `INSERT INTO records (id, owner, contribution, issued_at) VALUES (?,?,?,?)`,
			r.ID, r.Owner.Hex(), r.Contribution.String(), r.IssuedAt.UnixNano())
		return err
	case model.RecordsTransferred:
		for _, id := range c.IDs {
			res, err := tx.ExecContext(ctx, `UPDATE records SET owner = ? WHERE id = ?`, c.To.Hex(), id)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return fmt.Errorf("record %d not found", id)
			}
		}
		return nil
	case model.CheckpointWritten:
		_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO checkpoints (owner, seq, balance) VALUES (?,?,?)`,
			c.Owner.Hex(), c.Checkpoint.Seq, c.Checkpoint.Balance)
		return err
	case model.ReserveBalanceSet:
		return putKV(ctx, tx, keyReserveBalance, c.Balance.String())
	case model.OwnerSet:
		return putKV(ctx, tx, keyOwnerPrefix+c.Component, c.Owner.Hex())
	case model.FloorSet:
		return putKV(ctx, tx, keyFloor, strconv.FormatBool(c.Enabled))
	case model.PricingSet:
		data, err := json.Marshal(c.Params)
		if err != nil {
			return err
		}
		return putKV(ctx, tx, keyPricing, string(data))
	case model.GovernorAddressSet:
		return putKV(ctx, tx, keyGovernor, c.Governor.Hex())
	case model.LockSet:
		return putKV(ctx, tx, keyLocked, "true")
	case model.ProposalSaved:
		p := c.Proposal
		_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO proposals
			(period, candidate, quorum, for_votes, against_votes, abstain_votes,
			 start_time, end_time, snapshot_seq, status)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			p.Period, p.Candidate.Hex(), p.Quorum, p.ForVotes, p.AgainstVotes, p.AbstainVotes,
			p.StartTime.UnixNano(), p.EndTime.UnixNano(), p.SnapshotSeq, string(p.Status))
		return err
	case model.VoteRecorded:
		v := c.Vote
		_, err := tx.ExecContext(ctx, `INSERT INTO votes (period, voter, support, weight) VALUES (?,?,?,?)`,
			v.Period, v.Voter.Hex(), uint8(v.Support), v.Weight)
		return err
	case ledger.BookEntry:
		_, err := tx.ExecContext(ctx, `INSERT INTO accounts (address, balance) VALUES (?,?)
			ON CONFLICT(address) DO UPDATE SET balance = excluded.balance`,
			c.Account.Hex(), c.Balance.String())
		return err
	default:
		return fmt.Errorf("unknown change kind %q", c.ChangeKind())
	}
}

func putKV(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO kv (name, value) VALUES (?,?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Load reads the whole state back.
func (s *SQLite) Load(ctx context.Context) (*model.Snapshot, error) {
	snap := model.NewSnapshot()
	if err := s.loadKV(ctx, snap); err != nil {
		return nil, fmt.Errorf("load kv: %w", err)
	}
	if err := s.loadRecords(ctx, snap); err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	if err := s.loadCheckpoints(ctx, snap); err != nil {
		return nil, fmt.Errorf("load checkpoints: %w", err)
	}
	if err := s.loadGovernance(ctx, snap); err != nil {
		return nil, fmt.Errorf("load governance: %w", err)
	}
	if err := s.loadAccounts(ctx, snap); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	s.log.Info("state loaded",
		zap.Uint64("seq", snap.Seq),
		zap.Int("records", len(snap.Records)),
		zap.Int("proposals", len(snap.Proposals)))
	return snap, nil
}

func (s *SQLite) loadKV(ctx context.Context, snap *model.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM kv`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		if err := decodeKV(snap, key, value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return rows.Err()
}

func decodeKV(snap *model.Snapshot, key, value string) error {
	var err error
	switch key {
	case keySeq:
		snap.Seq, err = strconv.ParseUint(value, 10, 64)
	case keyReserveBalance:
		snap.ReserveBalance, err = ledger.ParseAmount(value)
	case keyGovernor:
		snap.Governor, err = ledger.ParseAddress(value)
	case keyFloor:
		var on bool
		on, err = strconv.ParseBool(value)
		snap.FloorEnabled = &on
	case keyPricing:
		var p pricing.Params
		err = json.Unmarshal([]byte(value), &p)
		snap.Pricing = &p
	case keyLocked:
		snap.Locked, err = strconv.ParseBool(value)
	case keyOwnerPrefix + model.ComponentRegistry:
		snap.RegistryOwner, err = ledger.ParseAddress(value)
	case keyOwnerPrefix + model.ComponentReserve:
		snap.ReserveOwner, err = ledger.ParseAddress(value)
	case keyOwnerPrefix + model.ComponentGovernor:
		snap.Proposer, err = ledger.ParseAddress(value)
	}
	return err
}

func (s *SQLite) loadRecords(ctx context.Context, snap *model.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner, contribution, issued_at FROM records ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r                   model.Record
			owner, contribution string
			issued              int64
		)
		if err := rows.Scan(&r.ID, &owner, &contribution, &issued); err != nil {
			return err
		}
		if r.Owner, err = ledger.ParseAddress(owner); err != nil {
			return err
		}
		if r.Contribution, err = ledger.ParseAmount(contribution); err != nil {
			return err
		}
		r.IssuedAt = time.Unix(0, issued).UTC()
		snap.Records = append(snap.Records, r)
	}
	return rows.Err()
}

func (s *SQLite) loadCheckpoints(ctx context.Context, snap *model.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT owner, seq, balance FROM checkpoints ORDER BY owner, seq`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			owner string
			cp    model.Checkpoint
		)
		if err := rows.Scan(&owner, &cp.Seq, &cp.Balance); err != nil {
			return err
		}
		addr, err := ledger.ParseAddress(owner)
		if err != nil {
			return err
		}
		snap.Checkpoints[addr] = append(snap.Checkpoints[addr], cp)
	}
	return rows.Err()
}

func (s *SQLite) loadGovernance(ctx context.Context, snap *model.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT period, candidate, quorum, for_votes, against_votes,
		abstain_votes, start_time, end_time, snapshot_seq, status FROM proposals ORDER BY period`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p         model.Proposal
			candidate string
			status    string
			startNs   int64
			endNs     int64
		)
		if err := rows.Scan(&p.Period, &candidate, &p.Quorum, &p.ForVotes, &p.AgainstVotes,
			&p.AbstainVotes, &startNs, &endNs, &p.SnapshotSeq, &status); err != nil {
			return err
		}
		if p.Candidate, err = ledger.ParseAddress(candidate); err != nil {
			return err
		}
		p.StartTime = time.Unix(0, startNs).UTC()
		p.EndTime = time.Unix(0, endNs).UTC()
		p.Status = model.ProposalStatus(status)
		snap.Proposals = append(snap.Proposals, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	vrows, err := s.db.QueryContext(ctx, `SELECT period, voter, support, weight FROM votes ORDER BY period`)
	if err != nil {
		return err
	}
	defer vrows.Close()

	for vrows.Next() {
		var (
			v       model.Vote
			voter   string
			support uint8
		)
		if err := vrows.Scan(&v.Period, &voter, &support, &v.Weight); err != nil {
			return err
		}
		if v.Voter, err = ledger.ParseAddress(voter); err != nil {
			return err
		}
		v.Support = model.Support(support)
		snap.Votes = append(snap.Votes, v)
	}
	return vrows.Err()
}

func (s *SQLite) loadAccounts(ctx context.Context, snap *model.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT address, balance FROM accounts`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var address, balance string
		if err := rows.Scan(&address, &balance); err != nil {
			return err
		}
		addr, err := ledger.ParseAddress(address)
		if err != nil {
			return err
		}
		if snap.Book[addr], err = ledger.ParseAmount(balance); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Events lists persisted events newest first.
func (s *SQLite) Events(ctx context.Context, kind string, limit int) ([]model.EventRecord, error) {
	q := `SELECT id, seq, kind, payload, ts FROM events`
	args := []any{}
	if kind != "" {
		q += ` WHERE kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY seq DESC, rowid DESC LIMIT ?`
	args = append(args, eventLimit(limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.EventRecord
	for rows.Next() {
		var (
			e       model.EventRecord
			payload string
			ts      int64
		)
		if err := rows.Scan(&e.ID, &e.Seq, &e.Kind, &payload, &ts); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		e.Time = time.Unix(0, ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ping checks the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	s.log.Info("closing sqlite store")
	return s.db.Close()
}
