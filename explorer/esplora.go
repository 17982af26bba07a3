package explorer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ProtonWallet/andromeda-sub000/internal/utils"
)

type esploraClient struct {
	baseUrl      string
	http         *http.Client
	cache        *utils.Cache[string]
	pollInterval time.Duration
}

func newEsploraClient(baseUrl string, opts *esploraOptions) *esploraClient {
	return &esploraClient{
		baseUrl:      strings.TrimRight(baseUrl, "/"),
		http:         &http.Client{Timeout: opts.httpTimeout},
		cache:        utils.NewCache[string](),
		pollInterval: opts.pollInterval,
	}
}

func (e *esploraClient) BaseUrl() string {
	return e.baseUrl
}

func (e *esploraClient) GetBlocks(fromHeight *uint32) ([]BlockSummary, error) {
	endpoint := fmt.Sprintf("%s/blocks", e.baseUrl)
	if fromHeight != nil {
		endpoint = fmt.Sprintf("%s/blocks/%d", e.baseUrl, *fromHeight)
	}

	body, err := e.get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get blocks: %s", err)
	}

	blocks := make([]BlockSummary, 0)
	if err := json.Unmarshal(body, &blocks); err != nil {
		return nil, fmt.Errorf("failed to parse blocks: %s", err)
	}
	return blocks, nil
}

func (e *esploraClient) GetBlockHash(height uint32) (*chainhash.Hash, error) {
	body, err := e.get(fmt.Sprintf("%s/block-height/%d", e.baseUrl, height))
	if err != nil {
		return nil, fmt.Errorf("failed to get block hash: %s", err)
	}
	hash, err := chainhash.NewHashFromStr(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("invalid block hash at height %d: %s", height, err)
	}
	return hash, nil
}

func (e *esploraClient) GetTipHash() (*chainhash.Hash, error) {
	body, err := e.get(fmt.Sprintf("%s/blocks/tip/hash", e.baseUrl))
	if err != nil {
		return nil, fmt.Errorf("failed to get tip hash: %s", err)
	}
	hash, err := chainhash.NewHashFromStr(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("invalid tip hash: %s", err)
	}
	return hash, nil
}

func (e *esploraClient) GetTipHeight() (uint32, error) {
	body, err := e.get(fmt.Sprintf("%s/blocks/tip/height", e.baseUrl))
	if err != nil {
		return 0, fmt.Errorf("failed to get tip height: %s", err)
	}
	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid tip height: %s", err)
	}
	return uint32(height), nil
}

func (e *esploraClient) GetScriptHashTxs(
	script []byte, lastSeenTxid *chainhash.Hash,
) ([]Tx, error) {
	scriptHash := ScriptHash(script)
	endpoint := fmt.Sprintf("%s/scripthash/%s/txs", e.baseUrl, scriptHash)
	if lastSeenTxid != nil {
		endpoint = fmt.Sprintf(
			"%s/scripthash/%s/txs/chain/%s", e.baseUrl, scriptHash, lastSeenTxid,
		)
	}

	body, err := e.get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get script history: %s", err)
	}

	txs := make([]Tx, 0)
	if err := json.Unmarshal(body, &txs); err != nil {
		return nil, fmt.Errorf("failed to parse script history: %s", err)
	}
	return txs, nil
}

func (e *esploraClient) GetManyScriptHashTxs(
	requests []ScriptHistoryRequest,
) (map[string][]Tx, error) {
	pages := make([][]Tx, len(requests))
	errs := make([]error, len(requests))

	wg := &sync.WaitGroup{}
	wg.Add(len(requests))
	for i, req := range requests {
		go func(i int, req ScriptHistoryRequest) {
			defer wg.Done()
			pages[i], errs[i] = e.GetScriptHashTxs(req.Script, req.LastSeenTxid)
		}(i, req)
	}
	wg.Wait()

	results := make(map[string][]Tx, len(requests))
	for i, req := range requests {
		if errs[i] != nil {
			return nil, errs[i]
		}
		results[ScriptHash(req.Script)] = pages[i]
	}
	return results, nil
}

func (e *esploraClient) GetTx(txid chainhash.Hash) (*wire.MsgTx, error) {
	resp, err := e.http.Get(fmt.Sprintf("%s/tx/%s", e.baseUrl, txid))
	if err != nil {
		return nil, err
	}
	// nolint:all
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get tx: %s", string(body))
	}

	var tx Tx
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("failed to parse tx: %s", err)
	}
	return tx.ToMsgTx()
}

func (e *esploraClient) GetTxStatus(txid chainhash.Hash) (*TxStatus, error) {
	body, err := e.get(fmt.Sprintf("%s/tx/%s/status", e.baseUrl, txid))
	if err != nil {
		return nil, fmt.Errorf("failed to get tx status: %s", err)
	}

	status := &TxStatus{}
	if err := json.Unmarshal(body, status); err != nil {
		return nil, fmt.Errorf("failed to parse tx status: %s", err)
	}
	return status, nil
}

func (e *esploraClient) GetTxHex(txid chainhash.Hash) (string, error) {
	if txHex, ok := e.cache.Get(txid.String()); ok {
		return txHex, nil
	}

	body, err := e.get(fmt.Sprintf("%s/tx/%s/hex", e.baseUrl, txid))
	if err != nil {
		return "", fmt.Errorf("failed to get tx hex: %s", err)
	}

	txHex := strings.TrimSpace(string(body))
	e.cache.Set(txid.String(), txHex)
	return txHex, nil
}

func (e *esploraClient) GetOutputStatus(
	txid chainhash.Hash, vout uint32,
) (*OutputStatus, error) {
	body, err := e.get(fmt.Sprintf("%s/tx/%s/outspend/%d", e.baseUrl, txid, vout))
	if err != nil {
		return nil, fmt.Errorf("failed to get output status: %s", err)
	}

	status := &OutputStatus{}
	if err := json.Unmarshal(body, status); err != nil {
		return nil, fmt.Errorf("failed to parse output status: %s", err)
	}
	return status, nil
}

func (e *esploraClient) GetFeeEstimates() (FeeEstimates, error) {
	body, err := e.get(fmt.Sprintf("%s/fee-estimates", e.baseUrl))
	if err != nil {
		return nil, fmt.Errorf("failed to get fee estimates: %s", err)
	}

	var response map[string]float64
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse fee estimates: %s", err)
	}

	estimates := make(FeeEstimates, len(response))
	for target, rate := range response {
		blocks, err := strconv.Atoi(target)
		if err != nil {
			continue
		}
		estimates[blocks] = rate
	}
	return estimates, nil
}

func (e *esploraClient) Broadcast(tx string) (string, error) {
	txHex, txid, err := parseBitcoinTx(tx)
	if err != nil {
		return "", err
	}
	e.cache.Set(txid, txHex)

	resp, err := e.http.Post(
		fmt.Sprintf("%s/tx", e.baseUrl), "text/plain", bytes.NewBufferString(txHex),
	)
	if err != nil {
		return "", err
	}
	// nolint:all
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		if strings.Contains(
			strings.ToLower(string(body)), "transaction already in block chain",
		) {
			return txid, nil
		}
		return "", fmt.Errorf("failed to broadcast: %s", string(body))
	}

	return strings.TrimSpace(string(body)), nil
}

func (e *esploraClient) get(endpoint string) ([]byte, error) {
	resp, err := e.http.Get(endpoint)
	if err != nil {
		return nil, err
	}
	// nolint:all
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s", string(body))
	}
	return body, nil
}
