package badgerdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/alpenlabs/bridged/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const (
	bridgeStoreDir = "bridge"
	bridgeStateKey = "state"
)

type bridgeStateRepository struct {
	store *badgerhold.Store
}

type bridgeStateDTO struct {
	Height    uint64
	State     []byte
	UpdatedAt int64
}

func NewBridgeStateRepository(config ...interface{}) (domain.BridgeStateRepository, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, bridgeStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open bridge state store: %s", err)
	}

	return &bridgeStateRepository{store}, nil
}

func (r *bridgeStateRepository) Save(
	ctx context.Context, height uint64, state *domain.BridgeState,
) error {
	serialized, err := state.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize bridge state: %s", err)
	}

	dto := bridgeStateDTO{
		Height:    height,
		State:     serialized,
		UpdatedAt: time.Now().Unix(),
	}

	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		return r.store.TxUpsert(tx, bridgeStateKey, dto)
	}
	return r.store.Upsert(bridgeStateKey, dto)
}

func (r *bridgeStateRepository) Restore(
	ctx context.Context, state *domain.BridgeState,
) (uint64, bool, error) {
	var dto bridgeStateDTO
	if err := r.store.Get(bridgeStateKey, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}

	if err := state.Decode(bytes.NewReader(dto.State)); err != nil {
		return 0, false, fmt.Errorf("failed to decode persisted bridge state: %s", err)
	}
	return dto.Height, true, nil
}

func (r *bridgeStateRepository) Close() {
	// nolint
	r.store.Close()
}

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}
