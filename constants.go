package zkclient

import "time"

// Command codes understood by ZKTeco terminals.
const (
	CMD_CONNECT       = 1000
	CMD_EXIT          = 1001
	CMD_ENABLEDEVICE  = 1002
	CMD_DISABLEDEVICE = 1003
	CMD_RESTART       = 1004
	CMD_POWEROFF      = 1005
	CMD_DEVICE        = 11
	CMD_VERSION       = 1100
	CMD_AUTH          = 1102

	CMD_ACK_OK     = 2000
	CMD_ACK_ERROR  = 2001
	CMD_ACK_DATA   = 2002
	CMD_ACK_UNAUTH = 2005

	CMD_PREPARE_DATA = 1500
	CMD_DATA         = 1501
	CMD_ATTLOG       = 1503
	CMD_CLEAR_ATTLOG = 1504
	CMD_GET_TIME     = 1505

	// older firmware
	CMD_OLD_ATTLOG       = 13
	CMD_OLD_CLEAR_ATTLOG = 14
)

const (
	USHRT_MAX = 65535

	// TCP packets are prefixed with 0x5050 0x827d followed by a u32 length.
	MACHINE_PREPARE_DATA_1 = 20560
	MACHINE_PREPARE_DATA_2 = 32130

	HeaderSize     = 8
	tcpTopSize     = 8
	AttRecordSize  = 40
	DefaultPort    = 4370
	DefaultBufSize = 8 * 1024
)

// DefaultMaxLogSize is about 1.6 million 40 byte records.
const DefaultMaxLogSize = 64 << 20

var (
	DefaultRecvTimeout       = 3 * time.Second
	DefaultSendTimeout       = 500 * time.Millisecond
	DefaultDeviceInfoTimeout = 1500 * time.Millisecond
	DefaultPollInterval      = 100 * time.Millisecond
)

const (
	// connect handshake budget: resend the request, then poll for a reply
	connectSendRetries  = 2
	connectRecvAttempts = 3
	ackRecvAttempts     = 3
)

// commandName is used for log output only.
func commandName(cmd uint16) string {
	switch cmd {
	case CMD_CONNECT:
		return "CONNECT"
	case CMD_EXIT:
		return "EXIT"
	case CMD_ENABLEDEVICE:
		return "ENABLEDEVICE"
	case CMD_DISABLEDEVICE:
		return "DISABLEDEVICE"
	case CMD_RESTART:
		return "RESTART"
	case CMD_POWEROFF:
		return "POWEROFF"
	case CMD_DEVICE:
		return "DEVICE"
	case CMD_VERSION:
		return "VERSION"
	case CMD_AUTH:
		return "AUTH"
	case CMD_ACK_OK:
		return "ACK_OK"
	case CMD_ACK_ERROR:
		return "ACK_ERROR"
	case CMD_ACK_DATA:
		return "ACK_DATA"
	case CMD_ACK_UNAUTH:
		return "ACK_UNAUTH"
	case CMD_PREPARE_DATA:
		return "PREPARE_DATA"
	case CMD_DATA:
		return "DATA"
	case CMD_ATTLOG:
		return "ATTLOG"
	case CMD_CLEAR_ATTLOG:
		return "CLEAR_ATTLOG"
	case CMD_GET_TIME:
		return "GET_TIME"
	case CMD_OLD_ATTLOG:
		return "OLD_ATTLOG"
	case CMD_OLD_CLEAR_ATTLOG:
		return "OLD_CLEAR_ATTLOG"
	}
	return "UNKNOWN"
}
