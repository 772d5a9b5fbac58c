package zkclient

import (
	"fmt"
	"strings"
	"time"
)

// TransportKind selects the socket type used to reach a terminal.
type TransportKind int

const (
	UDP TransportKind = iota
	TCP
)

func (k TransportKind) String() string {
	if k == TCP {
		return "tcp"
	}
	return "udp"
}

// ParseTransportKind accepts "udp" or "tcp" in any case. Empty means UDP.
func ParseTransportKind(s string) (TransportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "udp":
		return UDP, nil
	case "tcp":
		return TCP, nil
	}
	return UDP, fmt.Errorf("unknown transport %q", s)
}

// Endpoint is the fixed address of one terminal.
type Endpoint struct {
	Host string
	Port int
	Kind TransportKind
}

func (e Endpoint) Address() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

func (e Endpoint) String() string {
	return e.Kind.String() + "://" + e.Address()
}

// CommandHeader is the 8 byte header carried by every request and reply.
type CommandHeader struct {
	Command   uint16
	Checksum  uint16
	SessionID uint16
	ReplyID   uint16
}

// Response is a reply with its header decoded and the TCP top removed.
type Response struct {
	Header CommandHeader
	Data   []byte
}

func (r Response) String() string {
	return fmt.Sprintf("Code %d(%s) Session %d Reply %d Len %d",
		r.Header.Command, commandName(r.Header.Command), r.Header.SessionID, r.Header.ReplyID, len(r.Data))
}

// AttendanceRecord is one punch decoded from the device log.
type AttendanceRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	State     int       `json:"state"`
}

func (a AttendanceRecord) String() string {
	return fmt.Sprintf("%s %s state=%d", a.ID, a.Timestamp.Format("2006-01-02 15:04:05"), a.State)
}

// AttendanceLog is the low level result of a log transfer. It keeps the
// transfer bookkeeping that GetAttendance collapses away.
type AttendanceLog struct {
	Protocol     string
	DeclaredSize uint32
	Received     int
	Chunks       int
	Truncated    bool
	Raw          []byte
	RecordSize   int
	Records      []AttendanceRecord
}

// AckPolicy decides how a command without a reply is reported.
type AckPolicy int

const (
	// OptimisticOnSilence treats a missing reply as success. Many terminals
	// never answer enable, disable or clear, so this is the default.
	OptimisticOnSilence AckPolicy = iota
	// StrictAck requires an explicit ACK_OK.
	StrictAck
)

func (p AckPolicy) String() string {
	if p == StrictAck {
		return "strict"
	}
	return "optimistic"
}

// ChecksumMode selects what goes in the checksum field of outgoing headers.
// Whether terminals validate the field at all is unverified.
type ChecksumMode int

const (
	// ChecksumZero always sends 0.
	ChecksumZero ChecksumMode = iota
	// ChecksumPayloadSum sends Checksum(payload).
	ChecksumPayloadSum
	// ChecksumPacket sends the ones-complement word sum over the whole packet.
	ChecksumPacket
)
