package esplora

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alpenlabs/bridged/internal/core/ports"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
)

const tipHeightEndpoint = "/blocks/tip/height"

type Option func(*service)

func WithPollInterval(interval time.Duration) Option {
	return func(s *service) {
		s.pollInterval = interval
	}
}

// WithStartHeight skips every block up to and including the given height.
func WithStartHeight(height uint64) Option {
	return func(s *service) {
		s.lastHeight = height
	}
}

type service struct {
	baseURL      string
	pollInterval time.Duration
	lastHeight   uint64
	ch           chan ports.BlockEvent
	stopCh       chan struct{}
}

func NewService(esploraURL string, opts ...Option) (ports.ChainSource, error) {
	if len(esploraURL) == 0 {
		return nil, fmt.Errorf("esplora URL is required")
	}

	svc := &service{
		baseURL:      esploraURL,
		pollInterval: time.Second * 10,
		ch:           make(chan ports.BlockEvent),
		stopCh:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

func (s *service) Start() error {
	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				if err := s.poll(); err != nil {
					log.WithError(err).Warn("failed to poll esplora")
				}
			}
		}
	}()
	return nil
}

func (s *service) Stop() {
	close(s.stopCh)
}

func (s *service) GetNotificationChannel(_ context.Context) <-chan ports.BlockEvent {
	return s.ch
}

func (s *service) poll() error {
	tip, err := s.fetchTipHeight()
	if err != nil {
		return err
	}

	if s.lastHeight == 0 && tip > 0 {
		// start at the tip, there is no genesis state to replay
		s.lastHeight = tip - 1
	}

	for height := s.lastHeight + 1; height <= tip; height++ {
		hash, block, err := s.fetchBlock(height)
		if err != nil {
			return err
		}

		event := ports.BlockEvent{
			Height: height,
			Hash:   *hash,
			Txs:    block.Transactions,
		}

		select {
		case <-s.stopCh:
			return nil
		case s.ch <- event:
		}

		s.lastHeight = height
		log.Debugf("fetched block %d (%s)", height, hash)
	}

	return nil
}

func (s *service) fetchTipHeight() (uint64, error) {
	tipURL, err := url.JoinPath(s.baseURL, tipHeightEndpoint)
	if err != nil {
		return 0, err
	}

	body, err := s.get(tipURL)
	if err != nil {
		return 0, err
	}

	return strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
}

func (s *service) fetchBlock(height uint64) (*chainhash.Hash, *wire.MsgBlock, error) {
	hashURL, err := url.JoinPath(s.baseURL, "block-height", strconv.FormatUint(height, 10))
	if err != nil {
		return nil, nil, err
	}
	hashBody, err := s.get(hashURL)
	if err != nil {
		return nil, nil, err
	}
	hash, err := chainhash.NewHashFromStr(strings.TrimSpace(string(hashBody)))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid block hash for height %d: %s", height, err)
	}

	rawURL, err := url.JoinPath(s.baseURL, "block", hash.String(), "raw")
	if err != nil {
		return nil, nil, err
	}
	rawBody, err := s.get(rawURL)
	if err != nil {
		return nil, nil, err
	}

	var block wire.MsgBlock
	if err := block.Deserialize(bytes.NewReader(rawBody)); err != nil {
		return nil, nil, fmt.Errorf("failed to deserialize block %s: %s", hash, err)
	}

	return hash, &block, nil
}

func (s *service) get(reqURL string) ([]byte, error) {
	resp, err := http.Get(reqURL)
	if err != nil {
		return nil, err
	}
	// nolint
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, reqURL)
	}
	return io.ReadAll(resp.Body)
}
