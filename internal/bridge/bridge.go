// Package bridge connects the local event bus to an external hub over a
// websocket.
package bridge

import (
	"context"
	"encoding/json"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"jarvis/internal/bus"
)

const Shard = "jarvis"

// Message kinds on the wire.
const (
	KindFala       = "fala"
	KindStatus     = "status_fala"
	KindFerramenta = "ferramenta"
	KindResposta   = "resposta"
)

// Message is the hub frame.
type Message struct {
	From    string         `json:"from"`
	To      string         `json:"to"`
	Kind    string         `json:"kind"`
	Content string         `json:"content,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// DefaultBackoff is the pause between reconnect attempts.
const DefaultBackoff = 3 * time.Second

type Bridge struct {
	url     string
	backoff time.Duration
	bus     *bus.Bus

	mu   sync.Mutex
	conn *ws.Conn
}

func New(url string, backoff time.Duration, b *bus.Bus) *Bridge {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Bridge{url: url, backoff: backoff, bus: b}
}

// Attach forwards outgoing events to the hub. Frames are dropped while the
// connection is down.
func (br *Bridge) Attach() {
	br.bus.Subscribe(bus.Falar, func(ev bus.Event) {
		br.send(Message{Kind: KindResposta, Content: ev.Text("texto")})
	})
	br.bus.Subscribe(bus.StatusFala, func(ev bus.Event) {
		br.send(Message{Kind: KindStatus, Data: map[string]any{"status": ev.Bool("status")}})
	})
	br.bus.Subscribe(bus.Ferramenta, func(ev bus.Event) {
		br.send(Message{Kind: KindFerramenta, Content: ev.Text("nome"), Data: ev.Data})
	})
}

// Run keeps a connection open and injects hub speech into the bus until ctx
// is done.
func (br *Bridge) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, br.url, nil)
		if err != nil {
			log.Warn("Hub unreachable", "url", br.url, "err", err)
			if !wait(ctx, br.backoff) {
				break
			}
			continue
		}
		log.Info("Connected to hub", "url", br.url)
		br.setConn(conn)

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		br.read(conn)
		stop()

		br.setConn(nil)
		conn.Close()
		if ctx.Err() == nil {
			log.Warn("Hub connection lost, reconnecting", "url", br.url)
			wait(ctx, br.backoff)
		}
	}
	return nil
}

func (br *Bridge) read(conn *ws.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				log.Debug("Hub read ended", "err", err)
			}
			return
		}

		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Warn("Bad hub frame", "frame", string(raw), "err", err)
			continue
		}
		if m.To != "" && m.To != Shard && m.To != "ALL" {
			continue
		}
		if m.Kind == KindFala && m.Content != "" {
			br.bus.Publish(bus.FalaReconhecida, map[string]any{"texto": m.Content})
		}
	}
}

func (br *Bridge) send(m Message) {
	m.From = Shard
	if m.To == "" {
		m.To = "hub"
	}
	data, err := json.Marshal(m)
	if err != nil {
		log.Warn("Cannot encode hub frame", "kind", m.Kind, "err", err)
		return
	}

	br.mu.Lock()
	defer br.mu.Unlock()
	if br.conn == nil {
		return
	}
	if err := br.conn.WriteMessage(ws.TextMessage, data); err != nil {
		log.Warn("Hub write failed", "kind", m.Kind, "err", err)
	}
}

func (br *Bridge) setConn(c *ws.Conn) {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.conn = c
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
