package explorer

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

const (
	testBlockHash = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	testTxid      = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (Explorer, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewExplorer(server.URL)
	require.NoError(t, err)
	return svc, server
}

func TestNewExplorerValidation(t *testing.T) {
	_, err := NewExplorer("")
	require.EqualError(t, err, "missing explorer base url")

	_, err = NewExplorer("http://exa mple.com")
	require.ErrorContains(t, err, "invalid base url")
}

func TestGetBlocks(t *testing.T) {
	var gotPath string
	svc, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprintf(w, `[{"id":%q,"height":105,"timestamp":1700000000}]`, testBlockHash)
	})

	blocks, err := svc.GetBlocks(nil)
	require.NoError(t, err)
	require.Equal(t, "/blocks", gotPath)
	require.Len(t, blocks, 1)
	require.Equal(t, uint32(105), blocks[0].Height)

	block, err := blocks[0].BlockId()
	require.NoError(t, err)
	require.Equal(t, testBlockHash, block.Hash.String())

	from := uint32(90)
	_, err = svc.GetBlocks(&from)
	require.NoError(t, err)
	require.Equal(t, "/blocks/90", gotPath)
}

func TestGetTip(t *testing.T) {
	svc, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/blocks/tip/hash":
			fmt.Fprint(w, testBlockHash)
		case "/blocks/tip/height":
			fmt.Fprint(w, "105")
		default:
			http.NotFound(w, r)
		}
	})

	hash, err := svc.GetTipHash()
	require.NoError(t, err)
	require.Equal(t, testBlockHash, hash.String())

	height, err := svc.GetTipHeight()
	require.NoError(t, err)
	require.Equal(t, uint32(105), height)
}

func TestGetScriptHashTxs(t *testing.T) {
	script := []byte{0x00, 0x14, 0x01, 0x02}
	var gotPath string
	svc, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprintf(w, `[{"txid":%q,"version":2,"status":{"confirmed":false}}]`, testTxid)
	})

	txs, err := svc.GetScriptHashTxs(script, nil)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, fmt.Sprintf("/scripthash/%s/txs", ScriptHash(script)), gotPath)

	lastSeen, err := chainhash.NewHashFromStr(testTxid)
	require.NoError(t, err)
	_, err = svc.GetScriptHashTxs(script, lastSeen)
	require.NoError(t, err)
	require.Equal(
		t,
		fmt.Sprintf("/scripthash/%s/txs/chain/%s", ScriptHash(script), testTxid),
		gotPath,
	)
}

func TestGetManyScriptHashTxs(t *testing.T) {
	svc, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, ScriptHash([]byte{0x01})) {
			fmt.Fprintf(w, `[{"txid":%q,"version":2,"status":{"confirmed":false}}]`, testTxid)
			return
		}
		fmt.Fprint(w, `[]`)
	})

	pages, err := svc.GetManyScriptHashTxs([]ScriptHistoryRequest{
		{Script: []byte{0x01}},
		{Script: []byte{0x02}},
	})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Len(t, pages[ScriptHash([]byte{0x01})], 1)
	require.Empty(t, pages[ScriptHash([]byte{0x02})])
}

func TestGetTxNotFound(t *testing.T) {
	svc, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Transaction not found", http.StatusNotFound)
	})

	txid, err := chainhash.NewHashFromStr(testTxid)
	require.NoError(t, err)
	tx, err := svc.GetTx(*txid)
	require.NoError(t, err)
	require.Nil(t, tx)
}

func TestGetTxStatus(t *testing.T) {
	svc, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(
			w,
			`{"confirmed":true,"block_height":100,"block_hash":%q,"block_time":1700000000}`,
			testBlockHash,
		)
	})

	txid, err := chainhash.NewHashFromStr(testTxid)
	require.NoError(t, err)
	status, err := svc.GetTxStatus(*txid)
	require.NoError(t, err)
	require.True(t, status.Confirmed)

	anchor, ok := status.Anchor()
	require.True(t, ok)
	require.Equal(t, uint32(100), anchor.Height)
	require.Equal(t, testBlockHash, anchor.Hash.String())
	require.Equal(t, int64(1700000000), anchor.ConfirmationTime)
}

func TestGetOutputStatus(t *testing.T) {
	svc, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, fmt.Sprintf("/tx/%s/outspend/1", testTxid), r.URL.Path)
		fmt.Fprintf(w, `{"spent":true,"txid":%q,"vin":0,"status":{"confirmed":false}}`, testTxid)
	})

	txid, err := chainhash.NewHashFromStr(testTxid)
	require.NoError(t, err)
	status, err := svc.GetOutputStatus(*txid, 1)
	require.NoError(t, err)
	require.True(t, status.Spent)
	require.Equal(t, testTxid, status.Txid)
}

func TestGetFeeEstimates(t *testing.T) {
	svc, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"1":12.5,"6":4.2,"144":1.1}`)
	})

	estimates, err := svc.GetFeeEstimates()
	require.NoError(t, err)
	require.Equal(t, 12.5, estimates[1])
	require.Equal(t, 12.5, estimates.Fastest())

	require.Equal(t, float64(1), FeeEstimates{}.Fastest())
}

func TestGetTxHexCaching(t *testing.T) {
	calls := 0
	svc, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, "020000000001")
	})

	txid, err := chainhash.NewHashFromStr(testTxid)
	require.NoError(t, err)

	first, err := svc.GetTxHex(*txid)
	require.NoError(t, err)
	second, err := svc.GetTxHex(*txid)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, calls)
}

func TestBroadcastRejectsGarbage(t *testing.T) {
	svc, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("garbage must be rejected before reaching the network")
	})

	_, err := svc.Broadcast("not a transaction")
	require.Error(t, err)
}
