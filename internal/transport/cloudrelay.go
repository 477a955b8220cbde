package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"automationd/internal/ids"
)

// relayFrame is the envelope carried over the relay's websocket tunnel.
// It repurposes the teacher's RequestMsg/ResponseMsg shape to carry raw
// RPC frames instead of proxied HTTP request/response pairs.
type relayFrame struct {
	Type     string `json:"type"`
	ClientId string `json:"clientId"`
	Payload  []byte `json:"payload"`
}

// CloudRelay is the local-agent side of the cloud relay transport: it
// dials a public relay server over websocket and forwards RPC frames in
// both directions, retrying the dial on disconnect. Grounded on
// internet_bridge/agent.go's dial+retry loop.
type CloudRelay struct {
	relayURL     string
	agentID      string
	authRequired bool
	log          *zap.Logger

	onConnected    func(ids.ClientId)
	onDisconnected func(ids.ClientId)
	onData         func(ids.ClientId, []byte)

	mu       sync.Mutex
	conn     *websocket.Conn
	clientId ids.ClientId
	stop     chan struct{}
}

func NewCloudRelay(relayURL, agentID string, authRequired bool, log *zap.Logger) *CloudRelay {
	return &CloudRelay{relayURL: relayURL, agentID: agentID, authRequired: authRequired, log: log, stop: make(chan struct{})}
}

func (r *CloudRelay) AuthRequired() bool { return r.authRequired }

func (r *CloudRelay) SetCallbacks(onConnected func(ids.ClientId), onDisconnected func(ids.ClientId), onData func(ids.ClientId, []byte)) {
	r.onConnected = onConnected
	r.onDisconnected = onDisconnected
	r.onData = onData
}

func (r *CloudRelay) Open() error {
	go r.dialLoop()
	return nil
}

func (r *CloudRelay) Close() error {
	close(r.stop)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *CloudRelay) dialLoop() {
	for {
		select {
		case <-r.stop:
			return
		default:
		}
		conn, _, err := websocket.DefaultDialer.Dial(r.relayURL, nil)
		if err != nil {
			r.log.Warn("cloud relay dial failed, retrying", zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}
		register, _ := json.Marshal(map[string]any{"type": "register", "id": r.agentID})
		if err := conn.WriteMessage(websocket.TextMessage, register); err != nil {
			conn.Close()
			continue
		}

		clientId := ids.NewClientId()
		r.mu.Lock()
		r.conn = conn
		r.clientId = clientId
		r.mu.Unlock()
		if r.onConnected != nil {
			r.onConnected(clientId)
		}

		r.readLoop(conn, clientId)

		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		if r.onDisconnected != nil {
			r.onDisconnected(clientId)
		}
		time.Sleep(time.Second)
	}
}

func (r *CloudRelay) readLoop(conn *websocket.Conn, clientId ids.ClientId) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame relayFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Type == "request" && r.onData != nil {
			r.onData(clientId, frame.Payload)
		}
	}
}

func (r *CloudRelay) SendData(client ids.ClientId, payload []byte) error {
	r.mu.Lock()
	conn := r.conn
	bound := r.clientId == client
	r.mu.Unlock()
	if conn == nil || !bound {
		return nil
	}
	frame, err := json.Marshal(relayFrame{Type: "response", ClientId: client.String(), Payload: payload})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}
