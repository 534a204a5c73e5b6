package esplora

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func testBlock(t *testing.T, nonce uint32) *wire.MsgBlock {
	t.Helper()

	block := &wire.MsgBlock{Header: wire.BlockHeader{Nonce: nonce}}
	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x51}))
	block.AddTransaction(tx)
	return block
}

func TestPollGenesisTip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == tipHeightEndpoint {
				fmt.Fprint(w, "0")
				return
			}
			t.Errorf("unexpected request %s", r.URL.Path)
			http.NotFound(w, r)
		},
	))
	defer server.Close()

	svc, err := NewService(server.URL)
	require.NoError(t, err)

	// A zero tip must not wrap the start height and start fetching blocks.
	require.NoError(t, svc.(*service).poll())
	require.Equal(t, uint64(0), svc.(*service).lastHeight)
}

func TestPollEmitsBlocks(t *testing.T) {
	block := testBlock(t, 7)
	blockHash := block.BlockHash()

	var rawBlock bytes.Buffer
	require.NoError(t, block.Serialize(&rawBlock))

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == tipHeightEndpoint:
				fmt.Fprint(w, "5")
			case r.URL.Path == "/block-height/5":
				fmt.Fprint(w, blockHash.String())
			case strings.HasPrefix(r.URL.Path, "/block/"):
				_, _ = w.Write(rawBlock.Bytes())
			default:
				t.Errorf("unexpected request %s", r.URL.Path)
				http.NotFound(w, r)
			}
		},
	))
	defer server.Close()

	svc, err := NewService(server.URL)
	require.NoError(t, err)

	s := svc.(*service)
	errCh := make(chan error, 1)
	go func() { errCh <- s.poll() }()

	// The first poll starts at the tip: exactly one event, for height 5.
	select {
	case event := <-svc.GetNotificationChannel(context.Background()):
		require.Equal(t, uint64(5), event.Height)
		require.Equal(t, blockHash, event.Hash)
		require.Len(t, event.Txs, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for block event")
	}
	require.NoError(t, <-errCh)
	require.Equal(t, uint64(5), s.lastHeight)
}
