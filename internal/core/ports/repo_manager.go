package ports

import "github.com/alpenlabs/bridged/internal/core/domain"

type RepoManager interface {
	BridgeState() domain.BridgeStateRepository
	Close()
}
