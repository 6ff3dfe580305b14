// Package transport implements the Transport component of spec.md
// §4.1: owns the listening socket and every accepted peer socket,
// delivers inbound bytes and lifecycle events to the Dispatcher, and
// accepts outbound byte buffers from any caller.
//
// Grounded on the teacher's internal/server.go accept loop
// (net.Listen, one goroutine per connection) generalized with a
// worker pool per original_source/iocp_server.h's
// MessageHandler/ConnectHandler/DisconnectHandler callback
// registration and original_source/thread_pool.{h,cpp}'s pool shape.
// Go's net.Listen performs what the spec calls BindFailed and
// ListenFailed as a single syscall sequence with one error return, so
// both are folded into one chaterr.ErrBindFailed here rather than
// invented as a false distinction.
package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"chatserver/internal/chaterr"
)

const (
	// maxChunkSize is the per-delivery byte cap named in spec.md §4.1.
	maxChunkSize = 2048
	// outboundQueueSize bounds each connection's pending-write backlog,
	// per DESIGN.md's Open Question #5 decision: a slow reader's queue
	// fills and further sends are dropped rather than blocking the
	// broadcaster.
	outboundQueueSize = 256
)

// Handlers are the three event hooks spec.md §4.1 names.
type Handlers struct {
	OnConnect    func(clientID int, peerAddr string)
	OnMessage    func(clientID int, data []byte)
	OnDisconnect func(clientID int)
}

// outboundConn is the per-connection state a Send/Broadcast/Disconnect
// call can safely touch concurrently with the connection's own read
// and write loops.
type outboundConn struct {
	conn      net.Conn
	outbox    chan []byte
	writeDone chan struct{}
	closeOnce sync.Once
}

func (oc *outboundConn) closeSocket() {
	oc.closeOnce.Do(func() {
		_ = oc.conn.Close()
	})
}

// Transport owns the listener and the client socket table. Per
// spec.md §5, the client-table lock (mu) is distinct from every other
// component's lock, and Transport never calls into Registry/Rooms/
// Policy/Store directly — only through the Handlers callbacks it was
// constructed with.
type Transport struct {
	log      *zap.Logger
	handlers Handlers

	listener net.Listener
	pool     *pool

	mu      sync.Mutex
	clients map[int]*outboundConn

	nextID   int64
	stopping atomic.Bool
	wg       sync.WaitGroup
}

// New builds a Transport. workers <= 0 means "hardware parallelism",
// per spec.md §5.
func New(logger *zap.Logger, handlers Handlers, workers int) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		log:      logger,
		handlers: handlers,
		clients:  make(map[int]*outboundConn),
		pool:     newPool(workers, logger),
	}
}

// Start binds and listens on port and begins accepting connections in
// the background. Fails fatally with a wrapped chaterr.ErrBindFailed.
func (t *Transport) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("%w: %v", chaterr.ErrBindFailed, err)
	}
	t.listener = ln

	t.wg.Add(1)
	go t.acceptLoop()
	return nil
}

func (t *Transport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.stopping.Load() {
				return
			}
			t.log.Warn("accept failed, continuing", zap.Error(fmt.Errorf("%w: %v", chaterr.ErrAcceptFailed, err)))
			continue
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.handleConn(conn)
		}()
	}
}

// handleConn owns one accepted connection end to end: it is the only
// goroutine that ever removes the connection from the client table or
// fires on_disconnect, which is how the "exactly once" cleanup
// guarantee in spec.md §4.1 is upheld without extra bookkeeping.
func (t *Transport) handleConn(conn net.Conn) {
	id := int(atomic.AddInt64(&t.nextID, 1))
	peerAddr := conn.RemoteAddr().String()

	oc := &outboundConn{
		conn:      conn,
		outbox:    make(chan []byte, outboundQueueSize),
		writeDone: make(chan struct{}),
	}

	t.mu.Lock()
	t.clients[id] = oc
	t.mu.Unlock()

	go t.writeLoop(oc)

	// on_connect strictly precedes any on_message for this client
	// (spec.md §5): we wait for it to run on the pool before reading.
	t.runOnPool(func() { t.handlers.OnConnect(id, peerAddr) })

	buf := make([]byte, maxChunkSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			t.log.Debug("connection read ended", zap.Int("client_id", id),
				zap.Error(fmt.Errorf("%w: %v", chaterr.ErrReadFailed, err)))
			break
		}
		if n == 0 {
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])

		// Waiting for each chunk's dispatch to finish before issuing the
		// next read is what keeps on_message invocations for this client
		// serialized and in wire order, per spec.md §5, without needing
		// a second per-client lock at the Transport layer.
		t.runOnPool(func() { t.handlers.OnMessage(id, chunk) })
	}

	t.mu.Lock()
	delete(t.clients, id)
	t.mu.Unlock()

	oc.closeSocket()
	close(oc.writeDone)

	t.runOnPool(func() { t.handlers.OnDisconnect(id) })
}

// runOnPool submits fn to the worker pool and blocks until it has run,
// so the caller's ordering requirement holds without the caller
// needing its own synchronization.
func (t *Transport) runOnPool(fn func()) {
	done := make(chan struct{})
	t.pool.submit(func() {
		defer close(done)
		fn()
	})
	<-done
}

func (t *Transport) writeLoop(oc *outboundConn) {
	for {
		select {
		case buf := <-oc.outbox:
			if _, err := oc.conn.Write(buf); err != nil {
				t.log.Debug("connection write failed, closing",
					zap.Error(fmt.Errorf("%w: %v", chaterr.ErrWriteFailed, err)))
				oc.closeSocket()
				return
			}
		case <-oc.writeDone:
			return
		}
	}
}

// Send enqueues data for clientID. Returns whether the client was
// known. A full outbound queue (a slow reader) drops the message
// rather than blocking the caller.
func (t *Transport) Send(clientID int, data []byte) bool {
	t.mu.Lock()
	oc, ok := t.clients[clientID]
	t.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case oc.outbox <- data:
	default:
		t.log.Warn("dropping outbound message for slow client", zap.Int("client_id", clientID))
	}
	return true
}

// Broadcast fans data out to every registered client except excludeID.
func (t *Transport) Broadcast(data []byte, excludeID int) {
	t.mu.Lock()
	ids := make([]int, 0, len(t.clients))
	for id := range t.clients {
		if id != excludeID {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.Send(id, data)
	}
}

// Disconnect asynchronously closes clientID's socket; the read loop
// observes the resulting error and performs the one-time cleanup and
// on_disconnect callback.
func (t *Transport) Disconnect(clientID int) {
	t.mu.Lock()
	oc, ok := t.clients[clientID]
	t.mu.Unlock()
	if ok {
		oc.closeSocket()
	}
}

// ClientCount returns the number of currently-connected sockets, for
// the Admin Console.
func (t *Transport) ClientCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

// Stop is idempotent: it stops accepting, closes every peer socket,
// and waits for every in-flight connection goroutine and worker to
// quiesce, per spec.md §5.
func (t *Transport) Stop() {
	if !t.stopping.CompareAndSwap(false, true) {
		return
	}

	if t.listener != nil {
		_ = t.listener.Close()
	}

	t.mu.Lock()
	for _, oc := range t.clients {
		oc.closeSocket()
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.pool.stop()
}
