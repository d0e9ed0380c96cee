package ice

import (
	"net"
	"sort"
	"sync"

	"github.com/lanikai/iceagent/internal/logging"
)

var socketLog = logging.DefaultLogger.WithTag("ice/socket")

// ReceiveHook is a registered interceptor for inbound datagrams. It
// returns true if it consumed the packet ("handled"), false to let a
// lower-priority (numerically larger layer) hook see it ("pass"),
// mirroring the collaborator contract in §6.
type ReceiveHook func(buf []byte, src net.Addr) (handled bool)

// DatagramSocket is the §6 "Datagram socket" collaborator: bind,
// local-address query, and a layer-ordered receive-hook chain so the ICE
// core observes packets before upper (media) layers do.
type DatagramSocket interface {
	LocalAddr() net.Addr
	WriteTo(b []byte, addr net.Addr) (int, error)
	RegisterReceiveHook(layer int, hook ReceiveHook)
	Close() error
}

// StreamSocket is the §6 "Stream socket" collaborator: listen plus an
// accept callback, and per-connection read/write once a connection
// exists.
type StreamSocket interface {
	Accept(func(net.Conn))
	LocalAddr() net.Addr
	Close() error
}

type hookEntry struct {
	layer int
	hook  ReceiveHook
}

// udpSocket is the default DatagramSocket, grounded on the teacher's Base
// (internal/ice/base.go) readLoop but generalized: the teacher dispatches
// to a single handler-or-default; this dispatches through an ordered
// chain of layers, fixing internal/mux's unordered map dispatch (spec §6
// requires hooks to see packets in layer order, lowest first).
type udpSocket struct {
	conn net.PacketConn

	mu    sync.Mutex
	hooks []hookEntry

	closeOnce sync.Once
	dead      chan struct{}
}

// newUDPSocket adopts an existing net.PacketConn (caller-owned) or binds a
// new one if conn is nil, matching the registry's "adopt or bind" rule in
// §4.1.
func newUDPSocket(conn net.PacketConn, laddr *net.UDPAddr) (*udpSocket, error) {
	if conn == nil {
		var err error
		conn, err = net.ListenUDP("udp", laddr)
		if err != nil {
			return nil, err
		}
	}
	s := &udpSocket{conn: conn, dead: make(chan struct{})}
	go s.readLoop()
	return s, nil
}

func (s *udpSocket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *udpSocket) WriteTo(b []byte, addr net.Addr) (int, error) {
	return s.conn.WriteTo(b, addr)
}

func (s *udpSocket) RegisterReceiveHook(layer int, hook ReceiveHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hookEntry{layer, hook})
	sort.Slice(s.hooks, func(i, j int) bool { return s.hooks[i].layer < s.hooks[j].layer })
}

func (s *udpSocket) Close() error {
	s.closeOnce.Do(func() { close(s.dead) })
	return s.conn.Close()
}

func (s *udpSocket) readLoop() {
	buf := make([]byte, 1500)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.dead:
			default:
				socketLog.Debug("read loop terminating: %v", err)
			}
			return
		}
		s.dispatch(buf[:n], addr)
	}
}

func (s *udpSocket) dispatch(buf []byte, addr net.Addr) {
	s.mu.Lock()
	hooks := make([]hookEntry, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, h := range hooks {
		if h.hook(buf, addr) {
			return
		}
	}
	socketLog.Debug("no receive hook handled packet of %d bytes from %s", len(buf), addr)
}

// tcpListener is the default StreamSocket for Host/TCP-Passive and
// Host/TCP-SO candidates, grounded on the teacher's createBase TCP
// listen path.
type tcpListener struct {
	ln net.Listener
}

func newTCPListener(laddr *net.TCPAddr) (*tcpListener, error) {
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return nil, err
	}
	return &tcpListener{ln: ln}, nil
}

func (t *tcpListener) LocalAddr() net.Addr {
	return t.ln.Addr()
}

func (t *tcpListener) Close() error {
	return t.ln.Close()
}

func (t *tcpListener) Accept(onAccept func(net.Conn)) {
	go func() {
		for {
			conn, err := t.ln.Accept()
			if err != nil {
				return
			}
			onAccept(conn)
		}
	}()
}
