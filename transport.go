package olsr

import (
	"net"
	"net/netip"
	"sync"

	"go.uber.org/zap"
)

// OlsrPort is the well-known UDP port OLSR runs on (§6).
const OlsrPort = 698

// Transport binds one net.UDPConn per participating local interface to its
// subnet broadcast address on OlsrPort, per §4.10. Each connection's read
// goroutine hands raw datagrams to the supplied dispatch callback and runs
// that callback itself; with Engine.IngestDatagram as the callback, decoding
// and processing happen on the read goroutine, serialized by the engine's
// mutex (§5's one-handler-at-a-time discipline).
type Transport struct {
	logger     *zap.Logger
	mu         sync.Mutex
	conns      map[netip.Addr]*net.UDPConn
	broadcasts map[netip.Addr]netip.Addr
	stop       chan struct{}
	wg         sync.WaitGroup
}

// NewTransport binds a UDP socket for every address in ifaces, skipping any
// address present in exclusions. broadcastOf resolves each bound interface
// address to the subnet-directed broadcast address outbound sends target
// (§4.10), the way ns-3's olsr helper derives one per socket via
// GetSubnetDirectedBroadcast rather than assuming a single well-known
// address. A bind failure is fatal per §7 and is returned as
// SocketBindFailureError.
func NewTransport(ifaces []netip.Addr, broadcastOf func(netip.Addr) netip.Addr, exclusions map[netip.Addr]struct{}, logger *zap.Logger) (*Transport, error) {
	t := &Transport{
		logger:     logger,
		conns:      make(map[netip.Addr]*net.UDPConn),
		broadcasts: make(map[netip.Addr]netip.Addr),
		stop:       make(chan struct{}),
	}
	for _, iface := range ifaces {
		if _, excluded := exclusions[iface]; excluded {
			continue
		}
		laddr := &net.UDPAddr{IP: iface.AsSlice(), Port: OlsrPort}
		conn, err := net.ListenUDP("udp4", laddr)
		if err != nil {
			t.Close()
			return nil, SocketBindFailureError{Iface: iface.String(), Err: err}
		}
		t.conns[iface] = conn
		t.broadcasts[iface] = broadcastOf(iface)
	}
	return t, nil
}

// Run starts one read goroutine per bound interface, calling dispatch(local,
// from, data) for every received datagram, until Close is called.
func (t *Transport) Run(dispatch func(local, from netip.Addr, data []byte)) {
	for iface, conn := range t.conns {
		t.wg.Add(1)
		go t.readLoop(iface, conn, dispatch)
	}
}

func (t *Transport) readLoop(iface netip.Addr, conn *net.UDPConn, dispatch func(local, from netip.Addr, data []byte)) {
	defer t.wg.Done()
	buf := make([]byte, 65535)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.stop:
				return
			default:
				t.logger.Warn("read error", zap.String("iface", iface.String()), zap.Error(err))
				continue
			}
		}
		from, ok := netip.AddrFromSlice(addr.IP.To4())
		if !ok {
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		dispatch(iface, from, payload)
	}
}

// Send implements Sender by writing data to iface's subnet-directed
// broadcast address, as resolved by NewTransport's broadcastOf.
func (t *Transport) Send(iface netip.Addr, data []byte) error {
	t.mu.Lock()
	conn, ok := t.conns[iface]
	bcast, hasBcast := t.broadcasts[iface]
	t.mu.Unlock()
	if !ok {
		return SocketBindFailureError{Iface: iface.String(), Err: net.ErrClosed}
	}
	if !hasBcast {
		bcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})
	}
	_, err := conn.WriteToUDP(data, &net.UDPAddr{IP: bcast.AsSlice(), Port: OlsrPort})
	return err
}

// Close stops every read goroutine and closes every bound socket.
func (t *Transport) Close() {
	close(t.stop)
	t.mu.Lock()
	for _, conn := range t.conns {
		conn.Close()
	}
	t.mu.Unlock()
	t.wg.Wait()
}
