package db

import (
	"fmt"

	"github.com/alpenlabs/bridged/internal/core/domain"
	"github.com/alpenlabs/bridged/internal/core/ports"
	badgerdb "github.com/alpenlabs/bridged/internal/infrastructure/db/badger"
)

var bridgeStateStoreTypes = map[string]func(...interface{}) (domain.BridgeStateRepository, error){
	"badger": badgerdb.NewBridgeStateRepository,
}

// ServiceConfig picks the storage backend and its constructor arguments.
type ServiceConfig struct {
	DbType   string
	DbConfig []interface{}
}

type service struct {
	bridgeStateRepo domain.BridgeStateRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	factory, ok := bridgeStateStoreTypes[config.DbType]
	if !ok {
		return nil, fmt.Errorf("unsupported db type: %s", config.DbType)
	}

	bridgeStateRepo, err := factory(config.DbConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to open bridge state repository: %s", err)
	}

	return &service{bridgeStateRepo}, nil
}

func (s *service) BridgeState() domain.BridgeStateRepository {
	return s.bridgeStateRepo
}

func (s *service) Close() {
	s.bridgeStateRepo.Close()
}
