package explorer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ScriptHash renders the Electrum-style script hash used by scripthash
// endpoints: sha256 of the script pubkey in reversed hex.
func ScriptHash(script []byte) string {
	hash := sha256.Sum256(script)
	// chainhash renders in reverse byte order.
	return chainhash.Hash(hash).String()
}

func parseBitcoinTx(txStr string) (string, string, error) {
	var tx wire.MsgTx

	if err := tx.Deserialize(hex.NewDecoder(strings.NewReader(txStr))); err != nil {
		ptx, err := psbt.NewFromRawBytes(strings.NewReader(txStr), true)
		if err != nil {
			return "", "", err
		}

		txFromPartial, err := psbt.Extract(ptx)
		if err != nil {
			return "", "", err
		}

		tx = *txFromPartial
	}

	var txBuf bytes.Buffer

	if err := tx.Serialize(&txBuf); err != nil {
		return "", "", err
	}

	txHex := hex.EncodeToString(txBuf.Bytes())
	txid := tx.TxHash().String()

	return txHex, txid, nil
}

func deriveWsURL(baseUrl string) (string, error) {
	parsedUrl, err := url.Parse(baseUrl)
	if err != nil {
		return "", err
	}

	scheme := "ws"
	if parsedUrl.Scheme == "https" {
		scheme = "wss"
	}
	parsedUrl.Scheme = scheme
	wsUrl := strings.TrimRight(parsedUrl.String(), "/")

	return fmt.Sprintf("%s/v1/ws", wsUrl), nil
}
