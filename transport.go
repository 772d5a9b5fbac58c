package zkclient

import (
	"bytes"
	"errors"
	"net"
	"time"
)

// transport is the primitive send/receive surface used by every command.
// One transport belongs to one client and is never shared.
type transport interface {
	// Send writes one packet, bounded by the send timeout.
	Send(packet []byte) (int, error)
	// Receive makes up to attempts short reads separated by delay and
	// returns the first non-empty packet.
	Receive(maxBytes, attempts int, delay time.Duration) ([]byte, error)
	// Drain discards anything already queued on the socket.
	Drain()
	// Close is idempotent.
	Close() error
}

type transportConfig struct {
	sendTimeout time.Duration
	dialTimeout time.Duration
	pollWindow  time.Duration
	bufferSize  int
}

// openTransport creates the socket for ep. TCP connects are bounded by
// dialTimeout so an unreachable terminal fails fast.
func openTransport(ep Endpoint, cfg transportConfig) (transport, error) {
	network := "udp"
	if ep.Kind == TCP {
		network = "tcp"
	}

	conn, err := net.DialTimeout(network, ep.Address(), cfg.dialTimeout)
	if err != nil {
		return nil, &SocketCreateError{Endpoint: ep, Err: err}
	}

	switch c := conn.(type) {
	case *net.TCPConn:
		if err := c.SetReadBuffer(cfg.bufferSize); err == nil {
			err = c.SetWriteBuffer(cfg.bufferSize)
		}
		if err == nil {
			err = c.SetKeepAlive(true)
		}
		if err != nil {
			_ = c.Close()
			return nil, &SocketCreateError{Endpoint: ep, Err: err}
		}
		return &tcpTransport{conn: c, cfg: cfg, scratch: make([]byte, cfg.bufferSize)}, nil
	case *net.UDPConn:
		if err := c.SetReadBuffer(cfg.bufferSize); err == nil {
			err = c.SetWriteBuffer(cfg.bufferSize)
		}
		if err != nil {
			_ = c.Close()
			return nil, &SocketCreateError{Endpoint: ep, Err: err}
		}
		return &udpTransport{conn: c, cfg: cfg}, nil
	}

	_ = conn.Close()
	return nil, &SocketCreateError{Endpoint: ep, Err: errors.New("unexpected connection type")}
}

type udpTransport struct {
	conn   *net.UDPConn
	cfg    transportConfig
	closed bool
}

func (u *udpTransport) Send(packet []byte) (int, error) {
	if u.closed {
		return 0, net.ErrClosed
	}
	if err := u.conn.SetWriteDeadline(time.Now().Add(u.cfg.sendTimeout)); err != nil {
		return 0, err
	}
	n, err := u.conn.Write(packet)
	if err != nil {
		if isTimeout(err) {
			return n, &TransportTimeout{Op: "send", Attempts: 1, Err: err}
		}
		return n, err
	}
	return n, nil
}

func (u *udpTransport) Receive(maxBytes, attempts int, delay time.Duration) ([]byte, error) {
	if u.closed {
		return nil, net.ErrClosed
	}
	if maxBytes <= 0 || maxBytes > u.cfg.bufferSize {
		maxBytes = u.cfg.bufferSize
	}
	if attempts < 1 {
		attempts = 1
	}

	buf := make([]byte, maxBytes)
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		if err := u.conn.SetReadDeadline(time.Now().Add(u.cfg.pollWindow)); err != nil {
			return nil, err
		}
		n, err := u.conn.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if err != nil && !isTimeout(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, &TransportTimeout{Op: "receive", Attempts: attempts, Err: lastErr}
}

func (u *udpTransport) Drain() {
	if u.closed {
		return
	}
	buf := make([]byte, u.cfg.bufferSize)
	for {
		if err := u.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
			return
		}
		if _, err := u.conn.Read(buf); err != nil {
			return
		}
	}
}

func (u *udpTransport) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	return u.conn.Close()
}

// tcpTransport frames every packet with the ZK TCP top and reassembles
// replies from the stream.
type tcpTransport struct {
	conn    *net.TCPConn
	cfg     transportConfig
	scratch []byte
	pending []byte
	closed  bool
}

func (t *tcpTransport) Send(packet []byte) (int, error) {
	if t.closed {
		return 0, net.ErrClosed
	}
	framed, err := createTCPTop(packet)
	if err != nil {
		return 0, err
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.sendTimeout)); err != nil {
		return 0, err
	}
	n, err := t.conn.Write(framed)
	if err != nil {
		if isTimeout(err) {
			return n, &TransportTimeout{Op: "send", Attempts: 1, Err: err}
		}
		return n, err
	}
	return len(packet), nil
}

// tcpTopMagic is how MACHINE_PREPARE_DATA_1 and _2 appear on the wire.
var tcpTopMagic = []byte{0x50, 0x50, 0x82, 0x7d}

// nextFrame pops one complete packet from pending. Bytes that do not start
// with a TCP top are handed back as one packet, up to the next TCP top.
func (t *tcpTransport) nextFrame() ([]byte, bool) {
	if len(t.pending) == 0 {
		return nil, false
	}
	size := testTCPTop(t.pending)
	if size == 0 {
		if len(t.pending) < tcpTopSize {
			return nil, false
		}
		end := len(t.pending)
		if i := bytes.Index(t.pending[1:], tcpTopMagic); i >= 0 {
			end = i + 1
		}
		pkt := append([]byte(nil), t.pending[:end]...)
		t.pending = t.pending[end:]
		return pkt, true
	}
	if len(t.pending) < tcpTopSize+size {
		return nil, false
	}
	pkt := append([]byte(nil), t.pending[tcpTopSize:tcpTopSize+size]...)
	t.pending = t.pending[tcpTopSize+size:]
	return pkt, true
}

// Receive counts only empty reads against attempts; a frame spread over
// several reads is reassembled.
func (t *tcpTransport) Receive(maxBytes, attempts int, delay time.Duration) ([]byte, error) {
	if t.closed {
		return nil, net.ErrClosed
	}
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for tries := 0; tries < attempts; {
		if pkt, ok := t.nextFrame(); ok {
			return pkt, nil
		}
		if err := t.conn.SetReadDeadline(time.Now().Add(t.cfg.pollWindow)); err != nil {
			return nil, err
		}
		n, err := t.conn.Read(t.scratch)
		if n > 0 {
			t.pending = append(t.pending, t.scratch[:n]...)
			continue
		}
		if err != nil && !isTimeout(err) {
			return nil, err
		}
		lastErr = err
		tries++
		if tries < attempts && delay > 0 {
			time.Sleep(delay)
		}
	}
	return nil, &TransportTimeout{Op: "receive", Attempts: attempts, Err: lastErr}
}

func (t *tcpTransport) Drain() {
	t.pending = nil
	if t.closed {
		return
	}
	for {
		if err := t.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
			return
		}
		if n, err := t.conn.Read(t.scratch); n == 0 || err != nil {
			return
		}
	}
}

func (t *tcpTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
