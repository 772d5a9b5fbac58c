package zkclient

import (
	"errors"
	"fmt"
)

// GetAttendance returns every punch in the terminal log. Transfer problems
// (silence, unexpected reply, truncated stream) are logged and give an empty
// slice, so "no new punches" and "unreachable this cycle" look the same to a
// polling job. Use ReadAttendance to tell them apart. The only error is
// ErrNotConnected.
func (zk *ZK) GetAttendance() ([]AttendanceRecord, error) {
	log, err := zk.ReadAttendance()
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return nil, err
		}
		zk.Log.Warnf("Read attendance: %v", err)
		return []AttendanceRecord{}, nil
	}
	return log.Records, nil
}

// ReadAttendance transfers and parses the attendance log. In ModeAuto the
// legacy command table is tried when the standard one gets no usable reply,
// or sends a payload in which no record decodes. A reply that is not
// PREPARE_DATA but is an ack means an empty log and is not an error.
func (zk *ZK) ReadAttendance() (*AttendanceLog, error) {
	if !zk.state.Connected() {
		return nil, ErrNotConnected
	}

	protocols := zk.mode.protocols()
	var lastErr error
	var undecoded *AttendanceLog
	var undecodedProto Protocol
	for i, p := range protocols {
		log, err := zk.readAttendance(p)
		if err == nil {
			if len(log.Records) == 0 && log.Received > 0 && i < len(protocols)-1 {
				zk.Log.Debugf("%s attendance payload of %d bytes has no records, trying next protocol", p.Name, log.Received)
				if undecoded == nil {
					undecoded, undecodedProto = log, p
				}
				continue
			}
			proto := p
			zk.active = &proto
			return log, nil
		}
		zk.Log.Debugf("%s attendance request failed: %v", p.Name, err)
		lastErr = err
		if zk.conn == nil {
			break
		}
	}
	if undecoded != nil {
		zk.active = &undecodedProto
		return undecoded, nil
	}
	return nil, lastErr
}

func (zk *ZK) readAttendance(p Protocol) (*AttendanceLog, error) {
	res, err := zk.exchange(p.AttLogCmd, nil, zk.bufferSize, zk.recvTimeout)
	if err != nil {
		return nil, err
	}

	out := &AttendanceLog{Protocol: p.Name, Records: []AttendanceRecord{}}
	switch res.Header.Command {
	case CMD_PREPARE_DATA:
	case CMD_ACK_OK, CMD_ACK_DATA:
		zk.Log.Debug("Attendance log is empty")
		return out, nil
	default:
		return nil, &ProtocolError{Request: p.AttLogCmd, Expected: CMD_PREPARE_DATA, Got: res.Header.Command}
	}

	total, err := unpackUint32(res.Data)
	if err != nil {
		return nil, err
	}
	out.DeclaredSize = total
	zk.Log.Debugf("Device announced %d bytes of attendance", total)
	if int64(total) > int64(zk.maxLogSize) {
		return nil, fmt.Errorf("%w: %d bytes announced, limit %d", ErrLogTooLarge, total, zk.maxLogSize)
	}

	data, chunks, truncated := zk.readChunks(total)
	out.Raw = data
	out.Received = len(data)
	out.Chunks = chunks
	out.Truncated = truncated

	parser := RecordParser{
		Sizes:    p.RecordSizes,
		Location: zk.loc,
		OnMalformed: func(size int, e *MalformedRecord) {
			zk.Log.Debugf("Skipping %d byte record: %v", size, e)
		},
	}
	out.Records, out.RecordSize = parser.Parse(data, total)
	zk.Log.Infof("Read %d attendance records (%d/%d bytes, %d chunks)", len(out.Records), out.Received, total, chunks)
	return out, nil
}

// readChunks pulls DATA chunks until total payload bytes arrived. Every
// chunk carries its own 8 byte header, which is stripped. A header-only
// chunk means the terminal has nothing more to send, whatever the byte count
// says; a missing chunk ends the transfer too. Either way the payload so far
// is returned, flagged as truncated if short. A reply that is not DATA ends
// the transfer as well.
func (zk *ZK) readChunks(total uint32) (data []byte, chunks int, truncated bool) {
	// the announced size is untrusted; grow from one buffer
	initial := zk.bufferSize
	if int64(total) < int64(initial) {
		initial = int(total)
	}
	data = make([]byte, 0, initial)
	for uint32(len(data)) < total {
		remaining := int(total) - len(data)
		want := remaining + HeaderSize
		if want > zk.bufferSize {
			want = zk.bufferSize
		}

		if err := zk.sendCommand(CMD_DATA, nil); err != nil {
			zk.Log.Warnf("Request chunk %d: %v", chunks+1, err)
			return data, chunks, true
		}
		chunk, err := zk.receive(want, zk.recvTimeout)
		if err != nil {
			zk.Log.Warnf("Receive chunk %d: %v", chunks+1, err)
			return data, chunks, true
		}
		if len(chunk) <= HeaderSize {
			zk.Log.Debugf("Device ended transfer at %d/%d bytes", len(data), total)
			return data, chunks, uint32(len(data)) < total
		}
		if h, _ := ParseHeader(chunk); h.Command != CMD_DATA && h.Command != CMD_PREPARE_DATA {
			zk.Log.Warnf("Chunk %d arrived as %d(%s), stopping transfer", chunks+1, h.Command, commandName(h.Command))
			return data, chunks, true
		}
		data = append(data, chunk[HeaderSize:]...)
		chunks++
	}
	return data, chunks, false
}

// ClearAttendance erases the attendance log, with the same ack policy as
// EnableDevice. It uses the protocol that last answered ReadAttendance and
// never falls back on its own: the legacy clear code erases all data on
// newer firmware.
func (zk *ZK) ClearAttendance() (bool, error) {
	return zk.ackCommand(zk.Protocol().ClearAttLogCmd, nil)
}
