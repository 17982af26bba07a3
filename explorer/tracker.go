package explorer

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ProtonWallet/andromeda-sub000/types"
)

const (
	pongInterval = 60 * time.Second
	pingInterval = (pongInterval * 9) / 10
)

type blockMessage struct {
	Block *struct {
		Id     string `json:"id"`
		Height uint32 `json:"height"`
	} `json:"block"`
}

// tipTracker watches the chain tip through the explorer websocket endpoint
// and falls back to polling the REST tip when the socket is unavailable.
// Purely advisory: consumers use tip events to decide when to sync.
type tipTracker struct {
	client *esploraClient

	mu           *sync.Mutex
	stopTracking func()
	listeners    []chan types.TipEvent
	lastTip      chainhash.Hash
}

// NewTipTracker returns a TipWatcher bound to the given Explorer. The
// explorer must have been created by NewExplorer.
func NewTipTracker(explorerSvc Explorer) TipWatcher {
	client, ok := explorerSvc.(*esploraClient)
	if !ok {
		return nil
	}
	return &tipTracker{client: client, mu: &sync.Mutex{}}
}

func (t *tipTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Nothing to do if already started.
	if t.stopTracking != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.stopTracking = cancel
	go t.track(ctx)
	log.Debug("explorer: started tip tracking")
}

func (t *tipTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopTracking == nil {
		return
	}
	t.stopTracking()
	t.stopTracking = nil

	for _, ch := range t.listeners {
		close(ch)
	}
	t.listeners = nil
	log.Debug("explorer: stopped tip tracking")
}

func (t *tipTracker) GetTipEvents() <-chan types.TipEvent {
	ch := make(chan types.TipEvent, 10)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, ch)
	return ch
}

func (t *tipTracker) track(ctx context.Context) {
	wsUrl, err := deriveWsURL(t.client.baseUrl)
	if err != nil {
		t.trackWithPolling(ctx)
		return
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsUrl, nil)
	if err != nil {
		log.WithError(err).Debugf(
			"explorer: websocket unavailable, falling back to polling with interval %s",
			t.client.pollInterval,
		)
		t.trackWithPolling(ctx)
		return
	}

	t.trackWithWebsocket(ctx, conn)
}

func (t *tipTracker) trackWithWebsocket(ctx context.Context, conn *websocket.Conn) {
	payload := map[string][]string{"want": {"blocks"}}
	if err := conn.WriteJSON(payload); err != nil {
		log.WithError(err).Warn("explorer: failed to subscribe for blocks")
		// nolint
		conn.Close()
		t.trackWithPolling(ctx)
		return
	}

	// Periodically ping to keep the connection alive.
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				// nolint
				conn.Close()
				return
			case <-ticker.C:
				deadline := time.Now().Add(10 * time.Second)
				// nolint
				conn.WriteControl(websocket.PingMessage, nil, deadline)
			}
		}
	}()

	// nolint
	conn.SetReadDeadline(time.Now().Add(pongInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongInterval))
	})

	for {
		var msg blockMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn(
				"explorer: failed to read block notification, falling back to polling",
			)
			// nolint
			conn.Close()
			t.trackWithPolling(ctx)
			return
		}
		if msg.Block == nil {
			continue
		}
		hash, err := chainhash.NewHashFromStr(msg.Block.Id)
		if err != nil {
			continue
		}
		t.notifyTip(msg.Block.Height, *hash)
	}
}

func (t *tipTracker) trackWithPolling(ctx context.Context) {
	ticker := time.NewTicker(t.client.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hash, err := t.client.GetTipHash()
			if err != nil {
				log.WithError(err).Warn("explorer: failed to poll chain tip")
				t.broadcast(types.TipEvent{Type: types.TipError, Err: err})
				continue
			}
			height, err := t.client.GetTipHeight()
			if err != nil {
				continue
			}
			t.notifyTip(height, *hash)
		}
	}
}

func (t *tipTracker) notifyTip(height uint32, hash chainhash.Hash) {
	t.mu.Lock()
	if hash == t.lastTip {
		t.mu.Unlock()
		return
	}
	first := t.lastTip == chainhash.Hash{}
	t.lastTip = hash
	t.mu.Unlock()

	eventType := types.TipUpdated
	if first {
		eventType = types.TipConnected
	}
	t.broadcast(types.TipEvent{Type: eventType, Height: height, Hash: hash})
}

func (t *tipTracker) broadcast(event types.TipEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.listeners {
		select {
		case ch <- event:
		default:
		}
	}
}
