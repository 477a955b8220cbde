package transport

import (
	"bufio"
	"net"
	"sync"

	"go.uber.org/zap"

	"automationd/internal/ids"
)

// TCPLine is a newline-framed TCP transport: one JSON object per line,
// the simplest possible concrete Transport, generalized from the
// teacher's raw net.Listener usage pattern (gin's HTTP listener setup
// elsewhere in the teacher handles framing for us; this transport has no
// such helper and frames by hand).
type TCPLine struct {
	addr           string
	authRequired   bool
	log            *zap.Logger
	listener       net.Listener
	onConnected    func(ids.ClientId)
	onDisconnected func(ids.ClientId)
	onData         func(ids.ClientId, []byte)

	mu    sync.Mutex
	conns map[ids.ClientId]net.Conn
}

func NewTCPLine(addr string, authRequired bool, log *zap.Logger) *TCPLine {
	return &TCPLine{addr: addr, authRequired: authRequired, log: log, conns: make(map[ids.ClientId]net.Conn)}
}

func (t *TCPLine) AuthRequired() bool { return t.authRequired }

func (t *TCPLine) SetCallbacks(onConnected func(ids.ClientId), onDisconnected func(ids.ClientId), onData func(ids.ClientId, []byte)) {
	t.onConnected = onConnected
	t.onDisconnected = onDisconnected
	t.onData = onData
}

func (t *TCPLine) Open() error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	t.listener = ln
	go t.acceptLoop()
	return nil
}

func (t *TCPLine) Close() error {
	if t.listener == nil {
		return nil
	}
	return t.listener.Close()
}

func (t *TCPLine) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			return
		}
		clientId := ids.NewClientId()
		t.mu.Lock()
		t.conns[clientId] = conn
		t.mu.Unlock()
		if t.onConnected != nil {
			t.onConnected(clientId)
		}
		go t.readLoop(clientId, conn)
	}
}

func (t *TCPLine) readLoop(clientId ids.ClientId, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		cp := make([]byte, len(line))
		copy(cp, line)
		if t.onData != nil {
			t.onData(clientId, cp)
		}
	}
	t.mu.Lock()
	delete(t.conns, clientId)
	t.mu.Unlock()
	conn.Close()
	if t.onDisconnected != nil {
		t.onDisconnected(clientId)
	}
}

func (t *TCPLine) SendData(client ids.ClientId, payload []byte) error {
	t.mu.Lock()
	conn, ok := t.conns[client]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := conn.Write(append(payload, '\n'))
	return err
}
