package zkclient

import "time"

// Option configures a ZK client.
type Option func(*ZK)

func WithTransport(kind TransportKind) Option {
	return func(zk *ZK) { zk.endpoint.Kind = kind }
}

// WithTimeout sets the receive window for one reply.
func WithTimeout(d time.Duration) Option {
	return func(zk *ZK) {
		if d > 0 {
			zk.recvTimeout = d
		}
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(zk *ZK) {
		if d > 0 {
			zk.sendTimeout = d
		}
	}
}

// WithDeviceInfoTimeout sets the shorter window used by device info queries.
func WithDeviceInfoTimeout(d time.Duration) Option {
	return func(zk *ZK) {
		if d > 0 {
			zk.infoTimeout = d
		}
	}
}

// WithPollInterval sets the spacing and read window of polling receives.
func WithPollInterval(d time.Duration) Option {
	return func(zk *ZK) {
		if d > 0 {
			zk.pollInterval = d
		}
	}
}

func WithBufferSize(n int) Option {
	return func(zk *ZK) {
		if n >= HeaderSize+4 {
			zk.bufferSize = n
		}
	}
}

// WithMaxLogSize bounds the attendance log size a terminal may announce.
func WithMaxLogSize(n int) Option {
	return func(zk *ZK) {
		if n > 0 {
			zk.maxLogSize = n
		}
	}
}

func WithProtocol(m ProtocolMode) Option {
	return func(zk *ZK) { zk.mode = m }
}

func WithAckPolicy(p AckPolicy) Option {
	return func(zk *ZK) { zk.ackPolicy = p }
}

func WithChecksumMode(m ChecksumMode) Option {
	return func(zk *ZK) { zk.checksum = m }
}

// WithPin sets the comm key used when a terminal demands authentication.
func WithPin(pin int) Option {
	return func(zk *ZK) { zk.pin = pin }
}

// WithLocation sets the zone of the terminal clock.
func WithLocation(loc *time.Location) Option {
	return func(zk *ZK) {
		if loc != nil {
			zk.loc = loc
		}
	}
}

func WithLogger(l Logger) Option {
	return func(zk *ZK) {
		if l != nil {
			zk.baseLog = l
		}
	}
}
