package zkclient

import (
	"encoding/hex"
	"fmt"
	"time"

	binarypack "github.com/canhlinh/go-binary-pack"
)

var headerFormat = []string{"H", "H", "H", "H"}

func newBP() *binarypack.BinaryPack {
	return &binarypack.BinaryPack{}
}

// BuildHeader packs the four header fields little-endian in wire order.
func BuildHeader(command, checksum, sessionID, replyID uint16) ([]byte, error) {
	return newBP().Pack(headerFormat, []interface{}{int(command), int(checksum), int(sessionID), int(replyID)})
}

// ParseHeader decodes the first 8 bytes of buf.
func ParseHeader(buf []byte) (CommandHeader, error) {
	if len(buf) < HeaderSize {
		return CommandHeader{}, &FramingError{Need: HeaderSize, Got: len(buf)}
	}
	v, err := newBP().UnPack(headerFormat, buf[:HeaderSize])
	if err != nil {
		return CommandHeader{}, err
	}
	return CommandHeader{
		Command:   uint16(v[0].(int)),
		Checksum:  uint16(v[1].(int)),
		SessionID: uint16(v[2].(int)),
		ReplyID:   uint16(v[3].(int)),
	}, nil
}

// Checksum is the sum of the payload byte values modulo 65536. Terminals
// expect exactly this; it is not an Internet checksum.
func Checksum(payload []byte) uint16 {
	sum := 0
	for _, b := range payload {
		sum += int(b)
	}
	return uint16(sum % (USHRT_MAX + 1))
}

// packetChecksum is the ones-complement sum of little-endian words over a
// whole packet, the variant some firmware checks.
func packetChecksum(p []byte) uint16 {
	checksum := 0
	for len(p) > 1 {
		checksum += int(p[0]) | int(p[1])<<8
		if checksum > USHRT_MAX {
			checksum -= USHRT_MAX
		}
		p = p[2:]
	}
	if len(p) > 0 {
		checksum += int(p[0])
	}
	for checksum > USHRT_MAX {
		checksum -= USHRT_MAX
	}

	checksum = ^checksum
	for checksum < 0 {
		checksum += USHRT_MAX
	}
	return uint16(checksum)
}

// parseResponse splits a reply into header and data.
func parseResponse(buf []byte) (*Response, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	return &Response{Header: h, Data: buf[HeaderSize:]}, nil
}

// parseConnectReply reads the session id a terminal assigns in its connect
// reply. The reply is its own wire structure; the id sits at bytes 4..5.
func parseConnectReply(buf []byte) (uint16, error) {
	if len(buf) < HeaderSize {
		return 0, &FramingError{Need: HeaderSize, Got: len(buf)}
	}
	v, err := newBP().UnPack([]string{"H"}, buf[4:6])
	if err != nil {
		return 0, err
	}
	return uint16(v[0].(int)), nil
}

func unpackUint32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, &FramingError{Need: 4, Got: len(b)}
	}
	v, err := newBP().UnPack([]string{"I"}, b[:4])
	if err != nil {
		return 0, err
	}
	return uint32(v[0].(int)), nil
}

func createTCPTop(packet []byte) ([]byte, error) {
	top, err := newBP().Pack([]string{"H", "H", "I"}, []interface{}{MACHINE_PREPARE_DATA_1, MACHINE_PREPARE_DATA_2, len(packet)})
	if err != nil {
		return nil, err
	}
	return append(top, packet...), nil
}

// testTCPTop returns the length announced by a TCP top, or 0 if buf does not
// start with one.
func testTCPTop(buf []byte) int {
	if len(buf) < tcpTopSize {
		return 0
	}
	v, err := newBP().UnPack([]string{"H", "H", "I"}, buf[:tcpTopSize])
	if err != nil {
		return 0
	}
	if uint16(v[0].(int)) == MACHINE_PREPARE_DATA_1 && uint16(v[1].(int)) == MACHINE_PREPARE_DATA_2 {
		return int(uint32(v[2].(int)))
	}
	return 0
}

// makeCommKey derives the CMD_AUTH payload from the device PIN.
func makeCommKey(key, sessionID int, ticks int) ([]byte, error) {
	k := 0
	for i := 31; i >= 0 && key != 0; i-- {
		k |= key & 1 << i
		key >>= 1
	}
	k += sessionID
	k ^= 0x4f534b5a // ZKSO
	k = (k&0xffff)<<16 | k>>16
	k = (k & 0xFF00FFFF) ^ (ticks | ticks<<8 | (ticks << 16) | (ticks << 24))
	return newBP().Pack([]string{"I"}, []interface{}{int(uint32(k))})
}

// decodeCompactTime decodes the u32 time encoding used by GET_TIME and the
// short legacy records: seconds since 2000-01-01 on a 12x31 day calendar.
func decodeCompactTime(t uint32, loc *time.Location) time.Time {
	v := int(t)
	second := v % 60
	v /= 60
	minute := v % 60
	v /= 60
	hour := v % 24
	v /= 24
	day := v%31 + 1
	v /= 31
	month := v%12 + 1
	v /= 12
	return time.Date(v+2000, time.Month(month), day, hour, minute, second, 0, loc)
}

func encodeCompactTime(t time.Time) uint32 {
	d := ((t.Year()%100)*12*31 + (int(t.Month())-1)*31 + t.Day() - 1) * 24 * 60 * 60
	return uint32(d + t.Hour()*60*60 + t.Minute()*60 + t.Second())
}

// LoadLocation falls back to time.Local for an unknown zone name.
func LoadLocation(timezone string) *time.Location {
	if timezone == "" {
		return time.Local
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Local
	}
	return location
}

func hexString(buf []byte) string {
	if len(buf) > 64 {
		return fmt.Sprintf("%s...(%d bytes)", hex.EncodeToString(buf[:64]), len(buf))
	}
	return hex.EncodeToString(buf)
}
