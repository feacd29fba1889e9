package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v3"

	"github.com/rollwave/rollwave/internal/domain"
	"github.com/rollwave/rollwave/internal/xjson"
)

const keyPrefix = "execution:"

// BadgerStore is a durable ExecutionStore keeping the latest snapshot per
// execution in a local badger database.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewBadgerStore(dataDir string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dataDir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", dataDir, err)
	}
	return &BadgerStore{
		db:     db,
		logger: logger.With("component", "store", "type", "badger"),
	}, nil
}

func (s *BadgerStore) Save(ctx context.Context, executionID string, snapshot domain.PipelineExecutionState) error {
	data, err := xjson.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", executionID, err)
	}

	key := []byte(keyPrefix + executionID)
	err = s.db.Update(func(txn *badger.Txn) error {
		// At-least-once delivery can reorder; keep the newest sequence.
		item, err := txn.Get(key)
		if err == nil {
			var existing domain.PipelineExecutionState
			if verr := item.Value(func(val []byte) error {
				return xjson.Unmarshal(val, &existing)
			}); verr == nil && existing.SequenceNumber > snapshot.SequenceNumber {
				return nil
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		s.logger.Error("snapshot save failed",
			"execution_id", executionID,
			"sequence", snapshot.SequenceNumber,
			"error", err.Error())
		return fmt.Errorf("saving snapshot %s: %w", executionID, err)
	}
	return nil
}

func (s *BadgerStore) Load(ctx context.Context, executionID string) (*domain.PipelineExecutionState, error) {
	var snapshot domain.PipelineExecutionState
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + executionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return xjson.Unmarshal(val, &snapshot)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("execution %s: %w", executionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", executionID, err)
	}
	return &snapshot, nil
}

// Close flushes and closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
