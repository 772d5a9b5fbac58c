package zkclient

import (
	"strconv"
	"strings"
	"time"
)

// RecordParser decodes fixed-width attendance records. A record that fails
// validation is skipped and the scan goes on; one corrupt punch never costs
// the rest of the log.
type RecordParser struct {
	// Sizes are tried in order until one yields at least one record.
	Sizes    []int
	Location *time.Location
	// OnMalformed, when set, sees every skipped record.
	OnMalformed func(size int, err *MalformedRecord)
}

type recordDecoder func(rec []byte, loc *time.Location) (AttendanceRecord, error)

var recordDecoders = map[int]recordDecoder{
	40: decodeRecord40,
	16: decodeRecord16,
	28: decodeRecord28,
	32: decodeRecord32,
}

// RecordSizes is the order record layouts are tried in: the 40 byte layout,
// then the short layouts of older firmware.
var RecordSizes = []int{AttRecordSize, 16, 28, 32}

// ParseAttendanceRecords decodes buf in the local zone, trying RecordSizes in
// order.
func ParseAttendanceRecords(buf []byte, declaredSize uint32) []AttendanceRecord {
	p := RecordParser{Sizes: RecordSizes, Location: time.Local}
	records, _ := p.Parse(buf, declaredSize)
	return records
}

// Parse returns the records of the first size that yields any, and that
// size. For the first size a trailing partial record is dropped; the later
// sizes are only tried when they divide the buffer exactly, so a single bad
// 40 byte record is not reread as short records. declaredSize, when smaller
// than buf, bounds the scan.
func (p RecordParser) Parse(buf []byte, declaredSize uint32) ([]AttendanceRecord, int) {
	if declaredSize > 0 && int64(declaredSize) < int64(len(buf)) {
		buf = buf[:declaredSize]
	}
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	sizes := p.Sizes
	if len(sizes) == 0 {
		sizes = []int{AttRecordSize}
	}

	for i, size := range sizes {
		decode, ok := recordDecoders[size]
		if !ok {
			continue
		}
		if i > 0 && len(buf)%size != 0 {
			continue
		}
		records := []AttendanceRecord{}
		for off := 0; off+size <= len(buf); off += size {
			rec, err := decode(buf[off:off+size], loc)
			if err != nil {
				if p.OnMalformed != nil {
					p.OnMalformed(size, &MalformedRecord{Offset: off, Reason: err.Error()})
				}
				continue
			}
			records = append(records, rec)
		}
		if len(records) > 0 {
			return records, size
		}
	}
	return []AttendanceRecord{}, 0
}

type recordError string

func (e recordError) Error() string { return string(e) }

const (
	errEmptyID  = recordError("empty user id")
	errBadDate  = recordError("date out of range")
	errBadShape = recordError("unexpected record shape")
)

// userID drops NUL padding wherever it sits, then trims spaces.
func userID(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, "\x00", ""))
}

func newRecord(id string, year, month, day, hour, minute, second, state int, loc *time.Location) (AttendanceRecord, error) {
	if id == "" {
		return AttendanceRecord{}, errEmptyID
	}
	if year < 2000 || year > 2099 || month < 1 || month > 12 || day < 1 || day > 31 {
		return AttendanceRecord{}, errBadDate
	}
	return AttendanceRecord{
		ID:        id,
		Timestamp: time.Date(year, time.Month(month), day, hour, minute, second, 0, loc),
		State:     state,
	}, nil
}

// decodeRecord40: 9s user id, 15 bytes unused, year H, month, day, hour,
// minute, second, state.
func decodeRecord40(rec []byte, loc *time.Location) (AttendanceRecord, error) {
	v, err := newBP().UnPack([]string{"9s", "15s", "H", "B", "B", "B", "B", "B", "B"}, rec)
	if err != nil {
		return AttendanceRecord{}, err
	}
	id, ok := v[0].(string)
	if !ok {
		return AttendanceRecord{}, errBadShape
	}
	return newRecord(userID(id),
		int(uint16(v[2].(int))), int(uint8(v[3].(int))), int(uint8(v[4].(int))),
		int(uint8(v[5].(int))), int(uint8(v[6].(int))), int(uint8(v[7].(int))),
		int(uint8(v[8].(int))), loc)
}

func compactRecord(id string, t uint32, state int, loc *time.Location) (AttendanceRecord, error) {
	ts := decodeCompactTime(t, loc)
	return newRecord(id, ts.Year(), int(ts.Month()), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), state, loc)
}

// decodeRecord16: user id I, compact time I, verify, state, 6 reserved.
func decodeRecord16(rec []byte, loc *time.Location) (AttendanceRecord, error) {
	v, err := newBP().UnPack([]string{"I", "I", "B", "B"}, rec)
	if err != nil {
		return AttendanceRecord{}, err
	}
	uid := uint32(v[0].(int))
	id := ""
	if uid != 0 {
		id = strconv.FormatUint(uint64(uid), 10)
	}
	return compactRecord(id, uint32(v[1].(int)), int(uint8(v[3].(int))), loc)
}

// decodeRecord28: 9s user id, state, 14 reserved, compact time I.
func decodeRecord28(rec []byte, loc *time.Location) (AttendanceRecord, error) {
	v, err := newBP().UnPack([]string{"9s", "B", "14s", "I"}, rec)
	if err != nil {
		return AttendanceRecord{}, err
	}
	id, ok := v[0].(string)
	if !ok {
		return AttendanceRecord{}, errBadShape
	}
	return compactRecord(userID(id), uint32(v[3].(int)), int(uint8(v[1].(int))), loc)
}

// decodeRecord32 is the real-time event layout: 24s user id, verify, state,
// then year-2000, month, day, hour, minute, second.
func decodeRecord32(rec []byte, loc *time.Location) (AttendanceRecord, error) {
	v, err := newBP().UnPack([]string{"24s", "B", "B", "B", "B", "B", "B", "B", "B"}, rec)
	if err != nil {
		return AttendanceRecord{}, err
	}
	id, ok := v[0].(string)
	if !ok {
		return AttendanceRecord{}, errBadShape
	}
	return newRecord(userID(id),
		2000+int(uint8(v[3].(int))), int(uint8(v[4].(int))), int(uint8(v[5].(int))),
		int(uint8(v[6].(int))), int(uint8(v[7].(int))), int(uint8(v[8].(int))),
		int(uint8(v[2].(int))), loc)
}
