// Package zktest runs an in-process fake ZKTeco terminal on loopback for
// tests. Replies are scripted per command code.
package zktest

import (
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	binarypack "github.com/canhlinh/go-binary-pack"
	"go.uber.org/atomic"

	"github.com/siwa2904/zkclient"
)

// DefaultSessionID is what the default CONNECT handler assigns.
const DefaultSessionID = 42

// Request is one command received by the device.
type Request struct {
	Header  zkclient.CommandHeader
	Payload []byte
}

// Handler returns the raw packets to send back, without TCP top. No packets
// means the device stays silent.
type Handler func(req Request) [][]byte

// Device is a fake terminal.
type Device struct {
	kind zkclient.TransportKind
	udp  *net.UDPConn
	ln   net.Listener

	mu       sync.Mutex
	handlers map[uint16]Handler
	requests []Request
	conns    map[net.Conn]struct{}

	served *atomic.Int64
	closed *atomic.Bool
	wg     sync.WaitGroup
}

// NewUDP starts a UDP device and stops it when the test ends.
func NewUDP(t testing.TB) *Device {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	d := newDevice(zkclient.UDP)
	d.udp = conn
	d.wg.Add(1)
	go d.serveUDP()
	t.Cleanup(d.Close)
	return d
}

// NewTCP starts a TCP device that speaks the TCP top framing.
func NewTCP(t testing.TB) *Device {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen tcp: %v", err)
	}
	d := newDevice(zkclient.TCP)
	d.ln = ln
	d.wg.Add(1)
	go d.serveTCP()
	t.Cleanup(d.Close)
	return d
}

func newDevice(kind zkclient.TransportKind) *Device {
	d := &Device{
		kind:     kind,
		handlers: map[uint16]Handler{},
		conns:    map[net.Conn]struct{}{},
		served:   atomic.NewInt64(0),
		closed:   atomic.NewBool(false),
	}
	d.Handle(zkclient.CMD_CONNECT, Connect(DefaultSessionID))
	d.Handle(zkclient.CMD_EXIT, Ack(zkclient.CMD_ACK_OK))
	d.Handle(zkclient.CMD_ENABLEDEVICE, Ack(zkclient.CMD_ACK_OK))
	d.Handle(zkclient.CMD_DISABLEDEVICE, Ack(zkclient.CMD_ACK_OK))
	d.Handle(zkclient.CMD_CLEAR_ATTLOG, Ack(zkclient.CMD_ACK_OK))
	d.Handle(zkclient.CMD_ATTLOG, Ack(zkclient.CMD_ACK_OK))
	return d
}

func (d *Device) addr() net.Addr {
	if d.udp != nil {
		return d.udp.LocalAddr()
	}
	return d.ln.Addr()
}

func (d *Device) Host() string {
	host, _, _ := net.SplitHostPort(d.addr().String())
	return host
}

func (d *Device) Port() int {
	_, port, _ := net.SplitHostPort(d.addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

func (d *Device) Kind() zkclient.TransportKind { return d.kind }

// Client returns a client pointed at the device with short test timeouts.
func (d *Device) Client(opts ...zkclient.Option) *zkclient.ZK {
	base := []zkclient.Option{
		zkclient.WithTransport(d.kind),
		zkclient.WithTimeout(400 * time.Millisecond),
		zkclient.WithDeviceInfoTimeout(300 * time.Millisecond),
		zkclient.WithPollInterval(20 * time.Millisecond),
	}
	return zkclient.NewZK(d.Host(), d.Port(), append(base, opts...)...)
}

// Handle replaces the handler for cmd. A nil handler makes cmd silent.
func (d *Device) Handle(cmd uint16, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		h = Silent()
	}
	d.handlers[cmd] = h
}

// Requests returns a copy of everything received so far.
func (d *Device) Requests() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Request(nil), d.requests...)
}

// Commands returns the command codes received so far, in order.
func (d *Device) Commands() []uint16 {
	var out []uint16
	for _, r := range d.Requests() {
		out = append(out, r.Header.Command)
	}
	return out
}

// Count returns how often cmd was received.
func (d *Device) Count(cmd uint16) int {
	n := 0
	for _, r := range d.Requests() {
		if r.Header.Command == cmd {
			n++
		}
	}
	return n
}

// Served is the number of packets handled.
func (d *Device) Served() int64 { return d.served.Load() }

func (d *Device) Close() {
	if d.closed.Swap(true) {
		return
	}
	if d.udp != nil {
		_ = d.udp.Close()
	}
	if d.ln != nil {
		_ = d.ln.Close()
	}
	d.mu.Lock()
	for c := range d.conns {
		_ = c.Close()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Device) dispatch(packet []byte) [][]byte {
	h, err := zkclient.ParseHeader(packet)
	if err != nil {
		return nil
	}
	req := Request{Header: h, Payload: append([]byte(nil), packet[zkclient.HeaderSize:]...)}

	d.mu.Lock()
	d.requests = append(d.requests, req)
	handler, ok := d.handlers[h.Command]
	d.mu.Unlock()

	d.served.Inc()
	if !ok {
		return nil
	}
	return handler(req)
}

func (d *Device) serveUDP() {
	defer d.wg.Done()
	buf := make([]byte, 65535)
	for {
		n, from, err := d.udp.ReadFromUDP(buf)
		if err != nil {
			if d.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		for _, reply := range d.dispatch(buf[:n]) {
			_, _ = d.udp.WriteToUDP(reply, from)
		}
	}
}

func (d *Device) serveTCP() {
	defer d.wg.Done()
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.wg.Add(1)
		go d.serveConn(conn)
	}
}

func (d *Device) serveConn(conn net.Conn) {
	defer d.wg.Done()
	d.mu.Lock()
	d.conns[conn] = struct{}{}
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.conns, conn)
		d.mu.Unlock()
		_ = conn.Close()
	}()

	top := make([]byte, 8)
	for {
		if _, err := io.ReadFull(conn, top); err != nil {
			return
		}
		v, err := newBP().UnPack([]string{"H", "H", "I"}, top)
		if err != nil {
			return
		}
		packet := make([]byte, int(uint32(v[2].(int))))
		if _, err := io.ReadFull(conn, packet); err != nil {
			return
		}
		for _, reply := range d.dispatch(packet) {
			framed, err := tcpTop(reply)
			if err != nil {
				return
			}
			if _, err := conn.Write(framed); err != nil {
				return
			}
		}
	}
}

func newBP() *binarypack.BinaryPack {
	return &binarypack.BinaryPack{}
}

func tcpTop(packet []byte) ([]byte, error) {
	top, err := newBP().Pack([]string{"H", "H", "I"},
		[]interface{}{zkclient.MACHINE_PREPARE_DATA_1, zkclient.MACHINE_PREPARE_DATA_2, len(packet)})
	if err != nil {
		return nil, err
	}
	return append(top, packet...), nil
}
