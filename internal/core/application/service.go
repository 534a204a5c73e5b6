package application

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/alpenlabs/bridged/common"
	"github.com/alpenlabs/bridged/common/txutils"
	"github.com/alpenlabs/bridged/internal/core/domain"
	"github.com/alpenlabs/bridged/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
)

// Service is the chain worker: it consumes confirmed blocks from the chain
// source and drives the bridge state through its per-block transition.
type Service interface {
	Start() error
	Stop()
	State() *domain.BridgeState
}

type service struct {
	state         *domain.BridgeState
	repo          ports.RepoManager
	chain         ports.ChainSource
	magic         []byte
	depositVout   uint32
	descriptorLen int

	lastHeight uint64
	stopCh     chan struct{}
}

func NewService(
	state *domain.BridgeState, repo ports.RepoManager, chain ports.ChainSource,
	magic []byte, depositVout uint32, descriptorLen int,
) (Service, error) {
	if len(magic) != common.MagicLen {
		return nil, fmt.Errorf("magic must be %d bytes, got %d", common.MagicLen, len(magic))
	}

	height, found, err := repo.BridgeState().Restore(context.Background(), state)
	if err != nil {
		return nil, fmt.Errorf("failed to restore bridge state: %s", err)
	}
	if found {
		log.Infof("restored bridge state at height %d", height)
	}

	return &service{
		state:         state,
		repo:          repo,
		chain:         chain,
		magic:         magic,
		depositVout:   depositVout,
		descriptorLen: descriptorLen,
		lastHeight:    height,
		stopCh:        make(chan struct{}),
	}, nil
}

func (s *service) Start() error {
	if err := s.chain.Start(); err != nil {
		return err
	}

	go s.listen()
	return nil
}

func (s *service) Stop() {
	close(s.stopCh)
	s.chain.Stop()
}

func (s *service) State() *domain.BridgeState {
	return s.state
}

func (s *service) listen() {
	ctx := context.Background()
	ch := s.chain.GetNotificationChannel(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			s.processBlock(ctx, event)
		}
	}
}

// processBlock applies one block's relevant transactions against the bridge
// state, sweeps the assignment table and persists the result. Blocks are
// handled strictly sequentially: the whole transition is a pure function of
// (prior state, block transactions, block commitment).
func (s *service) processBlock(ctx context.Context, event ports.BlockEvent) {
	if event.Height <= s.lastHeight && s.lastHeight > 0 {
		log.Warnf("skipping already processed block %d", event.Height)
		return
	}

	block := domain.BlockCommitment{Height: event.Height, Hash: event.Hash}

	aggKey, err := s.state.AggregatedKey()
	if err != nil {
		log.WithError(err).Error("failed to compute aggregated key, skipping block")
		return
	}

	for _, tx := range event.Txs {
		tag, err := common.FindTag(s.magic, tx)
		if err != nil {
			if !errors.Is(err, common.ErrNoTag) {
				log.WithError(err).Debugf("dropping tx %s with malformed tag", tx.TxHash())
			}
			continue
		}

		switch tag.Type {
		case common.TxTypeDeposit:
			s.handleDeposit(tx, tag, aggKey)
		case common.TxTypeWithdrawalIntent:
			s.handleWithdrawalIntent(tx, tag, block)
		default:
			log.Debugf("dropping tx %s with unknown tag type %d", tx.TxHash(), tag.Type)
		}
	}

	if reassigned, err := s.state.ReassignExpiredAssignments(block); err != nil {
		// One stuck assignment blocks the whole sweep. Nothing was applied,
		// the sweep runs again next block.
		log.WithError(err).Error("expiry sweep failed")
	} else if len(reassigned) > 0 {
		log.Infof("reassigned %d expired assignments at height %d: %v",
			len(reassigned), event.Height, reassigned)
	}

	if err := s.repo.BridgeState().Save(ctx, event.Height, s.state); err != nil {
		log.WithError(err).Errorf("failed to persist bridge state at height %d", event.Height)
		return
	}
	s.lastHeight = event.Height

	if commitment, err := s.state.Commitment(); err == nil {
		log.Debugf("processed block %d, state commitment %s",
			event.Height, hex.EncodeToString(commitment[:]))
	}
}

func (s *service) handleDeposit(tx *wire.MsgTx, tag *common.Tag, aggKey *btcec.PublicKey) {
	payload, err := common.ParseDepositPayload(tag.Payload, s.descriptorLen)
	if err != nil {
		log.WithError(err).Debugf("rejecting deposit tx %s", tx.TxHash())
		return
	}

	denomination := s.state.Params().Denomination

	if err := txutils.ValidateDepositOutput(tx, s.depositVout, denomination, aggKey); err != nil {
		log.WithError(err).Warnf("rejecting deposit %d", payload.DepositIdx)
		return
	}
	if err := txutils.ValidateDepositSpend(
		tx, denomination, payload.TakebackHash, aggKey,
	); err != nil {
		log.WithError(err).Warnf("rejecting deposit %d", payload.DepositIdx)
		return
	}

	err = s.state.AddDeposit(domain.DepositInfo{
		Idx:    payload.DepositIdx,
		Amount: denomination,
		Outpoint: wire.OutPoint{
			Hash:  tx.TxHash(),
			Index: s.depositVout,
		},
	})
	if err != nil {
		log.WithError(err).Warnf("rejecting deposit %d", payload.DepositIdx)
		return
	}

	log.Infof("registered deposit %d (%s)",
		payload.DepositIdx, btcutil.Amount(denomination))
}

func (s *service) handleWithdrawalIntent(
	tx *wire.MsgTx, tag *common.Tag, block domain.BlockCommitment,
) {
	payload, err := common.ParseWithdrawalIntentPayload(tag.Payload)
	if err != nil {
		log.WithError(err).Debugf("rejecting withdrawal intent tx %s", tx.TxHash())
		return
	}

	fee := s.state.Params().OperatorFee
	if payload.Amount <= fee {
		log.Warnf("rejecting withdrawal intent tx %s: amount %d does not cover operator fee %d",
			tx.TxHash(), payload.Amount, fee)
		return
	}

	output, err := withdrawalOutput(payload.Descriptor, payload.Amount-fee)
	if err != nil {
		log.WithError(err).Warnf("rejecting withdrawal intent tx %s", tx.TxHash())
		return
	}

	var preferred *domain.OperatorIdx
	if payload.HasOperator {
		idx := domain.OperatorIdx(payload.OperatorIdx)
		preferred = &idx
	}

	entry, err := s.state.CreateWithdrawalAssignment(output, preferred, block)
	if err != nil {
		log.WithError(err).Warnf("withdrawal intent tx %s not applied", tx.TxHash())
		return
	}

	log.Infof("assigned deposit %d to operator %d, deadline %d",
		entry.Deposit.Idx, entry.Assignee, entry.Deadline)
}

// withdrawalOutput builds the Bitcoin-side destination output from the intent
// descriptor. The subject must be a 32-byte x-only key, paid out as P2TR.
func withdrawalOutput(desc common.DepositDescriptor, value uint64) (wire.TxOut, error) {
	if len(desc.Subject) != 32 {
		return wire.TxOut{}, fmt.Errorf(
			"destination subject must be a 32-byte key, got %d bytes", len(desc.Subject),
		)
	}
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_1).AddData(desc.Subject).Script()
	if err != nil {
		return wire.TxOut{}, err
	}
	return wire.TxOut{Value: int64(value), PkScript: script}, nil
}
