package transport

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	dialTimeout    = 2 * time.Second
	messageTimeout = 500 * time.Millisecond
)

type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, port int) *testClient {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.Dial("tcp", fmt.Sprintf("localhost:%d", port))
	require.NoError(t, err)
	return &testClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(t *testing.T, line string) {
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (c *testClient) expect(t *testing.T, contains string) {
	_ = c.conn.SetReadDeadline(time.Now().Add(messageTimeout))
	for {
		line, err := c.reader.ReadString('\n')
		require.NoError(t, err, "waiting for line containing %q", contains)
		if strings.Contains(line, contains) {
			return
		}
	}
}

func (c *testClient) close() { _ = c.conn.Close() }

func freePort(t *testing.T) int {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

type recordedEvents struct {
	mu          sync.Mutex
	connected   []int
	disconnected []int
	messages    map[int][]string
}

func newRecordedEvents() *recordedEvents {
	return &recordedEvents{messages: make(map[int][]string)}
}

func (r *recordedEvents) handlers(tr **Transport) Handlers {
	return Handlers{
		OnConnect: func(id int, peerAddr string) {
			r.mu.Lock()
			r.connected = append(r.connected, id)
			r.mu.Unlock()
			(*tr).Send(id, []byte("Welcome\n"))
		},
		OnMessage: func(id int, data []byte) {
			r.mu.Lock()
			r.messages[id] = append(r.messages[id], string(data))
			r.mu.Unlock()
			(*tr).Broadcast(data, id)
		},
		OnDisconnect: func(id int) {
			r.mu.Lock()
			r.disconnected = append(r.disconnected, id)
			r.mu.Unlock()
		},
	}
}

func startTestTransport(t *testing.T) (*Transport, *recordedEvents, int) {
	events := newRecordedEvents()
	var tr *Transport
	tr = New(zap.NewNop(), events.handlers(&tr), 2)
	port := freePort(t)
	require.NoError(t, tr.Start(port))
	t.Cleanup(tr.Stop)
	time.Sleep(50 * time.Millisecond)
	return tr, events, port
}

func TestOnConnectFiresBeforeAnyMessage(t *testing.T) {
	_, _, port := startTestTransport(t)

	c := dial(t, port)
	defer c.close()
	c.expect(t, "Welcome")
}

func TestBroadcastExcludesSender(t *testing.T) {
	_, _, port := startTestTransport(t)

	c1 := dial(t, port)
	defer c1.close()
	c2 := dial(t, port)
	defer c2.close()

	c1.expect(t, "Welcome")
	c2.expect(t, "Welcome")

	c1.send(t, "hello there")
	c2.expect(t, "hello there")

	_ = c1.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, err := c1.reader.ReadString('\n')
	require.Error(t, err, "sender should not receive its own broadcast")
}

func TestDisconnectFiresExactlyOnce(t *testing.T) {
	tr, events, port := startTestTransport(t)

	c := dial(t, port)
	c.expect(t, "Welcome")
	c.close()

	require.Eventually(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()
		return len(events.disconnected) == 1
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, 0, tr.ClientCount())
}

func TestTransportDisconnectClosesClientSocket(t *testing.T) {
	tr, _, port := startTestTransport(t)

	c := dial(t, port)
	defer c.close()
	c.expect(t, "Welcome")

	require.Equal(t, 1, tr.ClientCount())

	tr.Disconnect(1)

	_ = c.conn.SetReadDeadline(time.Now().Add(messageTimeout))
	_, err := c.reader.ReadString('\n')
	require.Error(t, err)
}

func TestStopIsIdempotentAndDrainsConnections(t *testing.T) {
	tr, _, port := startTestTransport(t)

	c := dial(t, port)
	defer c.close()
	c.expect(t, "Welcome")

	tr.Stop()
	tr.Stop() // must not panic or block
}
