package zkclient

import (
	"errors"
	"fmt"
	"time"
)

// ZK is a client for one terminal. It owns exactly one socket and has no
// internal locking: commands on one instance must be issued sequentially.
// Poll several terminals with one ZK per terminal.
type ZK struct {
	endpoint Endpoint

	recvTimeout  time.Duration
	sendTimeout  time.Duration
	infoTimeout  time.Duration
	pollInterval time.Duration
	bufferSize   int
	maxLogSize   int
	mode         ProtocolMode
	ackPolicy    AckPolicy
	checksum     ChecksumMode
	pin          int
	loc          *time.Location
	baseLog      Logger
	Log          Logger

	conn      transport
	state     *sessionState
	sessionID uint16
	replyID   uint16
	active    *Protocol
}

// NewZK returns a disconnected client for host:port. Port 0 means 4370 and
// the transport defaults to UDP.
func NewZK(host string, port int, opts ...Option) *ZK {
	if port == 0 {
		port = DefaultPort
	}
	zk := &ZK{
		endpoint:     Endpoint{Host: host, Port: port, Kind: UDP},
		recvTimeout:  DefaultRecvTimeout,
		sendTimeout:  DefaultSendTimeout,
		infoTimeout:  DefaultDeviceInfoTimeout,
		pollInterval: DefaultPollInterval,
		bufferSize:   DefaultBufSize,
		maxLogSize:   DefaultMaxLogSize,
		loc:          time.Local,
		baseLog:      Log,
	}
	for _, opt := range opts {
		opt(zk)
	}
	zk.Log = deviceLogger(zk.baseLog, zk.endpoint)
	zk.state = newSessionState(zk.Log)
	return zk
}

// SetTimeout sets the receive window for replies. It applies to the next
// request, including on an open session; the polling read window of an open
// socket only changes on the next Connect.
func (zk *ZK) SetTimeout(seconds, microseconds int) {
	d := time.Duration(seconds)*time.Second + time.Duration(microseconds)*time.Microsecond
	if d > 0 {
		zk.recvTimeout = d
	}
}

// SetBufferSize sets the socket buffer and maximum reply size. Chunk requests
// use it at once; the socket buffers of an open session keep their size until
// the next Connect.
func (zk *ZK) SetBufferSize(n int) {
	WithBufferSize(n)(zk)
}

func (zk *ZK) Endpoint() Endpoint { return zk.endpoint }

func (zk *ZK) Connected() bool { return zk.state.Connected() }

// State is one of StateDisconnected, StateConnecting or StateConnected.
func (zk *ZK) State() string { return zk.state.Current() }

func (zk *ZK) SessionID() uint16 { return zk.sessionID }

// Protocol returns the protocol that last produced a usable attendance reply,
// or the first protocol of the configured mode.
func (zk *ZK) Protocol() Protocol {
	if zk.active != nil {
		return *zk.active
	}
	return zk.mode.protocols()[0]
}

// Connect opens the socket and performs the handshake. A terminal that never
// answers yields (false, nil) and the caller may simply try again; a socket
// that cannot be opened yields an error. The socket is closed on every path
// that does not end connected.
func (zk *ZK) Connect() (ok bool, err error) {
	if zk.state.Connected() {
		zk.Log.Warn("Already connected")
		return true, nil
	}
	if err := zk.state.Dial(); err != nil {
		return false, err
	}

	conn, err := openTransport(zk.endpoint, transportConfig{
		sendTimeout: zk.sendTimeout,
		dialTimeout: zk.recvTimeout,
		pollWindow:  zk.pollWindow(),
		bufferSize:  zk.bufferSize,
	})
	if err != nil {
		_ = zk.state.Abort()
		zk.Log.Errorf("open socket: %v", err)
		return false, err
	}
	zk.conn = conn
	zk.sessionID = 0
	zk.replyID = 0
	zk.active = nil

	defer func() {
		if !ok {
			zk.closeTransport()
			_ = zk.state.Abort()
		}
	}()

	packet, err := zk.newPacket(CMD_CONNECT, 0, nil)
	if err != nil {
		return false, err
	}

	// UDP may drop the request, so resend it, and poll for the reply after
	// each send.
	deadline := time.Now().Add(zk.recvTimeout)
	var reply []byte
	for try := 0; try < connectSendRetries && reply == nil && time.Now().Before(deadline); try++ {
		if _, err := conn.Send(packet); err != nil {
			zk.Log.Debugf("connect send %d: %v", try+1, err)
			continue
		}
		buf, err := conn.Receive(zk.bufferSize, connectRecvAttempts, zk.pollInterval)
		if err != nil {
			zk.Log.Debugf("connect receive %d: %v", try+1, err)
			continue
		}
		if len(buf) >= HeaderSize {
			reply = buf
		}
	}
	if reply == nil {
		zk.Log.Warn("No reply to connect")
		return false, nil
	}

	zk.Log.Debugf("Connect reply[RAW]: %s", hexString(reply))
	sessionID, err := parseConnectReply(reply)
	if err != nil {
		return false, err
	}
	zk.sessionID = sessionID

	header, _ := ParseHeader(reply)
	if header.Command == CMD_ACK_UNAUTH {
		if err := zk.auth(); err != nil {
			return false, err
		}
	}

	if err := zk.state.Established(); err != nil {
		return false, err
	}
	zk.Log.Infof("Connected with session_id %d", zk.sessionID)
	return true, nil
}

func (zk *ZK) auth() error {
	key, err := makeCommKey(zk.pin, int(zk.sessionID), 50)
	if err != nil {
		return err
	}
	res, err := zk.exchange(CMD_AUTH, key, zk.bufferSize, zk.recvTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if res.Header.Command != CMD_ACK_OK {
		return fmt.Errorf("%w: reply %d", ErrUnauthorized, res.Header.Command)
	}
	return nil
}

// Disconnect sends EXIT without waiting for a reply and always releases the
// socket. It reports whether EXIT went out; calling it again is harmless.
func (zk *ZK) Disconnect() bool {
	sent := false
	if zk.state.Connected() && zk.conn != nil {
		if err := zk.sendCommand(CMD_EXIT, nil); err != nil {
			zk.Log.Debugf("send exit: %v", err)
		} else {
			sent = true
		}
	}
	zk.closeTransport()
	zk.state.Close()
	zk.sessionID = 0
	return sent
}

// Close implements io.Closer on top of Disconnect.
func (zk *ZK) Close() error {
	zk.Disconnect()
	return nil
}

func (zk *ZK) closeTransport() {
	if zk.conn == nil {
		return
	}
	if err := zk.conn.Close(); err != nil {
		zk.Log.Debugf("close socket: %v", err)
	}
	zk.conn = nil
}

func (zk *ZK) pollWindow() time.Duration {
	if zk.pollInterval < zk.recvTimeout {
		return zk.pollInterval
	}
	return zk.recvTimeout
}

// attemptsFor converts a receive window into a count of polling reads.
func (zk *ZK) attemptsFor(timeout time.Duration) int {
	n := int(timeout / zk.pollWindow())
	if n < 1 {
		n = 1
	}
	return n
}

func (zk *ZK) nextReplyID() uint16 {
	id := int(zk.replyID) + 1
	if id >= USHRT_MAX {
		id -= USHRT_MAX
	}
	zk.replyID = uint16(id)
	return zk.replyID
}

// buildHeader fills a zero session or reply id from the connection.
func (zk *ZK) buildHeader(command, checksum, sessionID, replyID uint16) ([]byte, error) {
	if sessionID == 0 {
		sessionID = zk.sessionID
	}
	if replyID == 0 {
		replyID = zk.replyID
	}
	return BuildHeader(command, checksum, sessionID, replyID)
}

// newPacket returns header+payload with the checksum chosen by the
// configured ChecksumMode.
func (zk *ZK) newPacket(command, replyID uint16, payload []byte) ([]byte, error) {
	var sum uint16
	switch zk.checksum {
	case ChecksumPayloadSum:
		sum = Checksum(payload)
	case ChecksumPacket:
		head, err := zk.buildHeader(command, 0, 0, replyID)
		if err != nil {
			return nil, err
		}
		sum = packetChecksum(append(head, payload...))
	}

	head, err := zk.buildHeader(command, sum, 0, replyID)
	if err != nil {
		return nil, err
	}
	return append(head, payload...), nil
}

// sendCommand writes one request. Anything still queued from an earlier
// command is discarded first so replies stay paired with requests.
func (zk *ZK) sendCommand(command uint16, payload []byte) error {
	if zk.conn == nil {
		return ErrNotConnected
	}
	zk.conn.Drain()

	packet, err := zk.newPacket(command, zk.nextReplyID(), payload)
	if err != nil {
		return err
	}
	zk.Log.Debugf("DataSend[USER]: CMD:%d(%s) SessionID:%d ReplyID:%d Payload:%s",
		command, commandName(command), zk.sessionID, zk.replyID, hexString(payload))

	n, err := zk.conn.Send(packet)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("failed to write command %d", command)
	}
	return nil
}

func (zk *ZK) receive(maxBytes int, timeout time.Duration) ([]byte, error) {
	if zk.conn == nil {
		return nil, ErrNotConnected
	}
	buf, err := zk.conn.Receive(maxBytes, zk.attemptsFor(timeout), 0)
	if err != nil {
		return nil, err
	}
	zk.Log.Debugf("Response[RAW]: %s", hexString(buf))
	return buf, nil
}

// exchange sends one request and waits for its reply.
func (zk *ZK) exchange(command uint16, payload []byte, maxBytes int, timeout time.Duration) (*Response, error) {
	if err := zk.sendCommand(command, payload); err != nil {
		return nil, err
	}
	buf, err := zk.receive(maxBytes, timeout)
	if err != nil {
		return nil, err
	}
	res, err := parseResponse(buf)
	if err != nil {
		return nil, err
	}
	zk.Log.Debugf("Response[USER]: %s", res)
	return res, nil
}

// ackCommand issues a command whose only reply is an ack.
//
// Soft failure policy: with OptimisticOnSilence, a command that gets no reply
// at all, or whose send or receive fails, is reported as successful. Real
// terminals routinely drop replies to enable, disable and clear while still
// executing them. Only an explicit reply other than ACK_OK counts as failure.
// StrictAck turns silence into an error.
func (zk *ZK) ackCommand(command uint16, payload []byte) (bool, error) {
	if !zk.state.Connected() {
		return false, ErrNotConnected
	}

	err := zk.sendCommand(command, payload)
	var buf []byte
	if err == nil {
		buf, err = zk.conn.Receive(zk.bufferSize, ackRecvAttempts, zk.pollInterval)
	}
	if err != nil {
		if zk.ackPolicy == OptimisticOnSilence {
			zk.Log.Warnf("No ack for %s, assuming success: %v", commandName(command), err)
			return true, nil
		}
		return false, err
	}

	res, err := parseResponse(buf)
	if err != nil {
		return false, err
	}
	if res.Header.Command != CMD_ACK_OK {
		zk.Log.Warnf("%s rejected with %d(%s)", commandName(command), res.Header.Command, commandName(res.Header.Command))
		return false, &ProtocolError{Request: command, Expected: CMD_ACK_OK, Got: res.Header.Command}
	}
	return true, nil
}

// EnableDevice puts the terminal back in normal operation.
func (zk *ZK) EnableDevice() (bool, error) {
	return zk.ackCommand(CMD_ENABLEDEVICE, nil)
}

// DisableDevice locks the keypad and sensor while data is read.
func (zk *ZK) DisableDevice() (bool, error) {
	return zk.ackCommand(CMD_DISABLEDEVICE, nil)
}

// Restart reboots the terminal. The session ends either way.
func (zk *ZK) Restart() (bool, error) {
	ok, err := zk.ackCommand(CMD_RESTART, nil)
	if errors.Is(err, ErrNotConnected) {
		return ok, err
	}
	zk.closeTransport()
	zk.state.Close()
	zk.sessionID = 0
	return ok, err
}

// PowerOff shuts the terminal down. The session ends either way.
func (zk *ZK) PowerOff() (bool, error) {
	ok, err := zk.ackCommand(CMD_POWEROFF, nil)
	if errors.Is(err, ErrNotConnected) {
		return ok, err
	}
	zk.closeTransport()
	zk.state.Close()
	zk.sessionID = 0
	return ok, err
}
