package transport

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"automationd/internal/ids"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket is a gin-routed websocket transport: each accepted connection
// becomes one client, framed as one JSON message per RPC request,
// grounded on cmd/remote_server's handleAgentWSGin upgrade pattern.
type WebSocket struct {
	addr         string
	path         string
	authRequired bool
	log          *zap.Logger
	engine       *gin.Engine
	server       *http.Server

	onConnected    func(ids.ClientId)
	onDisconnected func(ids.ClientId)
	onData         func(ids.ClientId, []byte)

	mu    sync.Mutex
	conns map[ids.ClientId]*websocket.Conn
}

func NewWebSocket(addr, path string, authRequired bool, log *zap.Logger) *WebSocket {
	gin.SetMode(gin.ReleaseMode)
	return &WebSocket{
		addr:         addr,
		path:         path,
		authRequired: authRequired,
		log:          log,
		engine:       gin.New(),
		conns:        make(map[ids.ClientId]*websocket.Conn),
	}
}

func (w *WebSocket) AuthRequired() bool { return w.authRequired }

func (w *WebSocket) SetCallbacks(onConnected func(ids.ClientId), onDisconnected func(ids.ClientId), onData func(ids.ClientId, []byte)) {
	w.onConnected = onConnected
	w.onDisconnected = onDisconnected
	w.onData = onData
}

func (w *WebSocket) Open() error {
	w.engine.GET(w.path, w.handleUpgrade)
	w.server = &http.Server{Addr: w.addr, Handler: w.engine}
	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			w.log.Error("websocket transport stopped", zap.Error(err))
		}
	}()
	return nil
}

func (w *WebSocket) Close() error {
	if w.server == nil {
		return nil
	}
	return w.server.Close()
}

func (w *WebSocket) handleUpgrade(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	clientId := ids.NewClientId()
	w.mu.Lock()
	w.conns[clientId] = conn
	w.mu.Unlock()
	if w.onConnected != nil {
		w.onConnected(clientId)
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if w.onData != nil {
			w.onData(clientId, msg)
		}
	}
	w.mu.Lock()
	delete(w.conns, clientId)
	w.mu.Unlock()
	conn.Close()
	if w.onDisconnected != nil {
		w.onDisconnected(clientId)
	}
}

func (w *WebSocket) SendData(client ids.ClientId, payload []byte) error {
	w.mu.Lock()
	conn, ok := w.conns[client]
	w.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
