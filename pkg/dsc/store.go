package dsc

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/luxfi/database"
	"github.com/luxfi/log"
)

var (
	snapshotKey = []byte("dsc:state")
	seqKey      = []byte("dsc:seq")
)

// stateRecord is the persisted engine state. Amounts are decimal strings so
// big integers survive JSON untouched.
type stateRecord struct {
	Seq       uint64                       `json:"seq"`
	Debts     map[string]string            `json:"debts"`
	Positions map[string]map[string]string `json:"positions"`
}

// Store persists engine snapshots to a key-value database. One snapshot per
// committed operation, written through a batch so the record and sequence
// number land together.
type Store struct {
	db     database.Database
	logger log.Logger
	seq    uint64
}

// NewStore wraps a database.
func NewStore(db database.Database, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// SaveSnapshot writes the full debt map and position book.
func (s *Store) SaveSnapshot(debts map[string]*big.Int, positions map[string]map[string]*big.Int) error {
	s.seq++
	rec := stateRecord{
		Seq:       s.seq,
		Debts:     make(map[string]string, len(debts)),
		Positions: make(map[string]map[string]string, len(positions)),
	}
	for user, d := range debts {
		rec.Debts[user] = d.String()
	}
	for user, byAsset := range positions {
		inner := make(map[string]string, len(byAsset))
		for symbol, amount := range byAsset {
			if amount.Sign() > 0 {
				inner[symbol] = amount.String()
			}
		}
		if len(inner) > 0 {
			rec.Positions[user] = inner
		}
	}

	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Reset()

	if err := batch.Put(snapshotKey, data); err != nil {
		return err
	}
	seqBytes, _ := json.Marshal(s.seq)
	if err := batch.Put(seqKey, seqBytes); err != nil {
		return err
	}
	return batch.Write()
}

// LoadSnapshot reads the last snapshot. Returns nil maps with no error when
// the database holds no prior state.
func (s *Store) LoadSnapshot() (map[string]*big.Int, map[string]map[string]*big.Int, error) {
	data, err := s.db.Get(snapshotKey)
	if err != nil {
		if err == database.ErrNotFound {
			s.logger.Info("no previous state found, starting fresh")
			return nil, nil, nil
		}
		return nil, nil, err
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	s.seq = rec.Seq

	debts := make(map[string]*big.Int, len(rec.Debts))
	for user, str := range rec.Debts {
		d, ok := new(big.Int).SetString(str, 10)
		if !ok {
			return nil, nil, fmt.Errorf("corrupt debt record for %s", user)
		}
		debts[user] = d
	}
	positions := make(map[string]map[string]*big.Int, len(rec.Positions))
	for user, byAsset := range rec.Positions {
		inner := make(map[string]*big.Int, len(byAsset))
		for symbol, str := range byAsset {
			amount, ok := new(big.Int).SetString(str, 10)
			if !ok {
				return nil, nil, fmt.Errorf("corrupt position record for %s/%s", user, symbol)
			}
			inner[symbol] = amount
		}
		positions[user] = inner
	}
	return debts, positions, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
