package transport

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"automationd/internal/ids"
)

func TestTCPLineRoundTrip(t *testing.T) {
	tr := NewTCPLine("127.0.0.1:0", false, zap.NewNop())

	connected := make(chan ids.ClientId, 1)
	received := make(chan []byte, 1)
	tr.SetCallbacks(
		func(id ids.ClientId) { connected <- id },
		func(ids.ClientId) {},
		func(_ ids.ClientId, data []byte) { received <- data },
	)
	require.NoError(t, tr.Open())
	defer tr.Close()

	conn, err := net.Dial("tcp", tr.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	var clientId ids.ClientId
	select {
	case clientId = <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection callback")
	}

	_, err = conn.Write([]byte("hello\n"))
	require.NoError(t, err)

	select {
	case data := <-received:
		require.Equal(t, "hello", string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for data callback")
	}

	require.NoError(t, tr.SendData(clientId, []byte(`{"status":"success"}`)))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, `{"status":"success"}`+"\n", line)
}
