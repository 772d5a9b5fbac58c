package zktest

import (
	"sync"
	"time"

	"github.com/siwa2904/zkclient"
)

// Packet builds a reply: 8 byte header followed by data.
func Packet(cmd, sessionID, replyID uint16, data []byte) []byte {
	head, err := zkclient.BuildHeader(cmd, 0, sessionID, replyID)
	if err != nil {
		panic(err)
	}
	return append(head, data...)
}

// Silent never answers.
func Silent() Handler {
	return func(Request) [][]byte { return nil }
}

// Ack answers with a bare header carrying code and the request's ids.
func Ack(code uint16) Handler {
	return func(req Request) [][]byte {
		return [][]byte{Packet(code, req.Header.SessionID, req.Header.ReplyID, nil)}
	}
}

// Reply answers with code and data.
func Reply(code uint16, data []byte) Handler {
	return func(req Request) [][]byte {
		return [][]byte{Packet(code, req.Header.SessionID, req.Header.ReplyID, data)}
	}
}

// Raw answers with exactly b.
func Raw(b []byte) Handler {
	return func(Request) [][]byte { return [][]byte{append([]byte(nil), b...)} }
}

// Connect assigns sessionID.
func Connect(sessionID uint16) Handler {
	return func(req Request) [][]byte {
		return [][]byte{Packet(zkclient.CMD_ACK_OK, sessionID, req.Header.ReplyID, nil)}
	}
}

// Sequence answers the n-th request with the n-th handler and stays silent
// once they run out.
func Sequence(handlers ...Handler) Handler {
	var mu sync.Mutex
	next := 0
	return func(req Request) [][]byte {
		mu.Lock()
		if next >= len(handlers) {
			mu.Unlock()
			return nil
		}
		h := handlers[next]
		next++
		mu.Unlock()
		return h(req)
	}
}

// Chunks answers successive requests with the given raw chunks, then with
// header-only DATA packets.
func Chunks(chunks ...[]byte) Handler {
	var mu sync.Mutex
	next := 0
	return func(req Request) [][]byte {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(chunks) {
			return [][]byte{Packet(zkclient.CMD_DATA, req.Header.SessionID, req.Header.ReplyID, nil)}
		}
		c := chunks[next]
		next++
		return [][]byte{append([]byte(nil), c...)}
	}
}

// ServeAttendance scripts a full log transfer on the standard command
// table: ATTLOG announces len(payload), DATA hands out chunkSize pieces.
func (d *Device) ServeAttendance(payload []byte, chunkSize int) {
	d.serveAttendance(zkclient.CMD_ATTLOG, uint32(len(payload)), payload, chunkSize)
}

// ServeLegacyAttendance is ServeAttendance on OLD_ATTLOG; the standard
// ATTLOG command goes silent.
func (d *Device) ServeLegacyAttendance(payload []byte, chunkSize int) {
	d.Handle(zkclient.CMD_ATTLOG, Silent())
	d.serveAttendance(zkclient.CMD_OLD_ATTLOG, uint32(len(payload)), payload, chunkSize)
}

func (d *Device) serveAttendance(cmd uint16, announce uint32, payload []byte, chunkSize int) {
	var chunks [][]byte
	for off := 0; off < len(payload); off += chunkSize {
		end := off + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, Packet(zkclient.CMD_DATA, DefaultSessionID, 0, payload[off:end]))
	}
	d.Handle(cmd, PrepareData(announce))
	d.Handle(zkclient.CMD_DATA, Chunks(chunks...))
}

// PrepareData is a PREPARE_DATA reply announcing total bytes.
func PrepareData(total uint32) Handler {
	return Reply(zkclient.CMD_PREPARE_DATA, []byte{byte(total), byte(total >> 8), byte(total >> 16), byte(total >> 24)})
}

// Record40 encodes one punch in the 40 byte layout.
func Record40(id string, t time.Time, state int) []byte {
	rec := make([]byte, zkclient.AttRecordSize)
	copy(rec[:9], id)
	rec[24] = byte(t.Year())
	rec[25] = byte(t.Year() >> 8)
	rec[26] = byte(t.Month())
	rec[27] = byte(t.Day())
	rec[28] = byte(t.Hour())
	rec[29] = byte(t.Minute())
	rec[30] = byte(t.Second())
	rec[31] = byte(state)
	return rec
}

// Records40 concatenates Record40 for each punch.
func Records40(punches ...zkclient.AttendanceRecord) []byte {
	var out []byte
	for _, p := range punches {
		out = append(out, Record40(p.ID, p.Timestamp, p.State)...)
	}
	return out
}

// Record16 encodes one punch in the short 16 byte layout: numeric user id,
// compact time, verify mode, state.
func Record16(uid uint32, t time.Time, state int) []byte {
	days := (t.Year()%100)*12*31 + (int(t.Month())-1)*31 + t.Day() - 1
	ts := uint32(days*24*60*60 + t.Hour()*60*60 + t.Minute()*60 + t.Second())

	rec := make([]byte, 16)
	rec[0], rec[1], rec[2], rec[3] = byte(uid), byte(uid>>8), byte(uid>>16), byte(uid>>24)
	rec[4], rec[5], rec[6], rec[7] = byte(ts), byte(ts>>8), byte(ts>>16), byte(ts>>24)
	rec[8] = 1
	rec[9] = byte(state)
	return rec
}
