package zkclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record40(id string, year, month, day, hour, minute, second, state int) []byte {
	rec := make([]byte, AttRecordSize)
	copy(rec[:9], id)
	rec[24] = byte(year)
	rec[25] = byte(year >> 8)
	rec[26] = byte(month)
	rec[27] = byte(day)
	rec[28] = byte(hour)
	rec[29] = byte(minute)
	rec[30] = byte(second)
	rec[31] = byte(state)
	return rec
}

func TestParseAttendanceRecords(t *testing.T) {
	buf := append(record40("007", 2024, 6, 1, 8, 0, 0, 0), record40("12", 2024, 6, 1, 17, 30, 5, 1)...)

	records := ParseAttendanceRecords(buf, uint32(len(buf)))
	require.Len(t, records, 2)

	assert.Equal(t, "007", records[0].ID)
	assert.Equal(t, "2024-06-01 08:00:00", records[0].Timestamp.Format("2006-01-02 15:04:05"))
	assert.Equal(t, 0, records[0].State)

	assert.Equal(t, "12", records[1].ID)
	assert.Equal(t, "2024-06-01 17:30:05", records[1].Timestamp.Format("2006-01-02 15:04:05"))
	assert.Equal(t, 1, records[1].State)
}

func TestParseSkipsOutOfRangeYear(t *testing.T) {
	for _, year := range []int{1999, 2100, 0} {
		records := ParseAttendanceRecords(record40("007", year, 6, 1, 8, 0, 0, 0), AttRecordSize)
		assert.Empty(t, records, "year %d", year)
	}
}

func TestParseSkipsBadDate(t *testing.T) {
	assert.Empty(t, ParseAttendanceRecords(record40("1", 2024, 0, 1, 0, 0, 0, 0), 0))
	assert.Empty(t, ParseAttendanceRecords(record40("1", 2024, 13, 1, 0, 0, 0, 0), 0))
	assert.Empty(t, ParseAttendanceRecords(record40("1", 2024, 1, 0, 0, 0, 0, 0), 0))
	assert.Empty(t, ParseAttendanceRecords(record40("1", 2024, 1, 32, 0, 0, 0, 0), 0))
}

func TestParseIDPadding(t *testing.T) {
	rec := record40("", 2024, 6, 1, 8, 0, 0, 0)
	copy(rec[:9], "A\x00\x00B\x00\x00\x00\x00\x00")

	records := ParseAttendanceRecords(rec, AttRecordSize)
	require.Len(t, records, 1)
	assert.Equal(t, "AB", records[0].ID)
}

func TestParseSkipsEmptyID(t *testing.T) {
	rec := record40("", 2024, 6, 1, 8, 0, 0, 0)
	assert.Empty(t, ParseAttendanceRecords(rec, AttRecordSize))

	copy(rec[:9], "  \x00 ")
	assert.Empty(t, ParseAttendanceRecords(rec, AttRecordSize))
}

func TestParseCorruptRecordInTheMiddle(t *testing.T) {
	var buf []byte
	buf = append(buf, record40("1", 2024, 6, 1, 8, 0, 0, 0)...)
	buf = append(buf, record40("2", 1987, 99, 77, 8, 0, 0, 0)...)
	buf = append(buf, record40("3", 2024, 6, 1, 9, 0, 0, 1)...)

	var skipped []*MalformedRecord
	p := RecordParser{
		Sizes:       []int{AttRecordSize},
		Location:    time.UTC,
		OnMalformed: func(_ int, e *MalformedRecord) { skipped = append(skipped, e) },
	}
	records, size := p.Parse(buf, uint32(len(buf)))
	require.Len(t, records, 2)
	assert.Equal(t, AttRecordSize, size)
	assert.Equal(t, "1", records[0].ID)
	assert.Equal(t, "3", records[1].ID)
	require.Len(t, skipped, 1)
	assert.Equal(t, AttRecordSize, skipped[0].Offset)
}

func TestParseDropsTrailingPartialRecord(t *testing.T) {
	buf := append(record40("1", 2024, 6, 1, 8, 0, 0, 0), record40("2", 2024, 6, 1, 8, 0, 0, 0)[:39]...)
	records := ParseAttendanceRecords(buf, 0)
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0].ID)
}

func TestParseHonoursDeclaredSize(t *testing.T) {
	buf := append(record40("1", 2024, 6, 1, 8, 0, 0, 0), record40("2", 2024, 6, 1, 8, 0, 0, 0)...)
	records := ParseAttendanceRecords(buf, AttRecordSize)
	require.Len(t, records, 1)
}

func TestParseLegacySizes(t *testing.T) {
	when := time.Date(2023, time.March, 14, 15, 9, 26, 0, time.UTC)
	legacy := RecordParser{Sizes: ProtocolLegacy.RecordSizes, Location: time.UTC}

	t.Run("16", func(t *testing.T) {
		rec := make([]byte, 16)
		rec[0] = 0x39 // user 313
		rec[1] = 0x01
		ts := encodeCompactTime(when)
		rec[4], rec[5], rec[6], rec[7] = byte(ts), byte(ts>>8), byte(ts>>16), byte(ts>>24)
		rec[8] = 1
		rec[9] = 4

		records, size := legacy.Parse(append(rec, rec...), 0)
		require.Len(t, records, 2)
		assert.Equal(t, 16, size)
		assert.Equal(t, "313", records[0].ID)
		assert.True(t, when.Equal(records[0].Timestamp))
		assert.Equal(t, 4, records[0].State)
	})

	t.Run("28", func(t *testing.T) {
		rec := make([]byte, 28)
		copy(rec[:9], "77")
		rec[9] = 2
		ts := encodeCompactTime(when)
		rec[24], rec[25], rec[26], rec[27] = byte(ts), byte(ts>>8), byte(ts>>16), byte(ts>>24)

		records, size := legacy.Parse(append(rec, rec...), 0)
		require.Len(t, records, 2)
		assert.Equal(t, 28, size)
		assert.Equal(t, "77", records[0].ID)
		assert.True(t, when.Equal(records[0].Timestamp))
		assert.Equal(t, 2, records[0].State)
	})

	t.Run("32", func(t *testing.T) {
		// the id sits where the 16 and 28 byte layouts see no user
		rec := make([]byte, 32)
		copy(rec[12:], "9001")
		rec[24] = 15 // verify
		rec[25] = 1
		copy(rec[26:], []byte{23, 3, 14, 15, 9, 26})

		records, size := legacy.Parse(rec, 0)
		require.Len(t, records, 1)
		assert.Equal(t, 32, size)
		assert.Equal(t, "9001", records[0].ID)
		assert.True(t, when.Equal(records[0].Timestamp))
		assert.Equal(t, 1, records[0].State)
	})

	t.Run("standard first", func(t *testing.T) {
		rec := record40("5", 2024, 6, 1, 8, 0, 0, 0)
		records, size := legacy.Parse(rec, 0)
		require.Len(t, records, 1)
		assert.Equal(t, AttRecordSize, size)
	})

	t.Run("nothing", func(t *testing.T) {
		records, size := legacy.Parse(make([]byte, 64), 0)
		assert.Empty(t, records)
		assert.Equal(t, 0, size)
	})
}

func TestParseAttendanceRecordsFallsBackToShortLayouts(t *testing.T) {
	when := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.Local)
	rec := make([]byte, 16)
	rec[0] = 7
	ts := encodeCompactTime(when)
	rec[4], rec[5], rec[6], rec[7] = byte(ts), byte(ts>>8), byte(ts>>16), byte(ts>>24)
	rec[9] = 1

	records := ParseAttendanceRecords(append(rec, rec...), 0)
	require.Len(t, records, 2)
	assert.Equal(t, "7", records[0].ID)
	assert.Equal(t, 1, records[0].State)
	assert.True(t, when.Equal(records[0].Timestamp))
}

func TestParseDoesNotRereadBadRecordAsShortLayouts(t *testing.T) {
	// a bad 40 byte record holds bytes the 28 byte layout would accept
	rec := record40("1", 1999, 6, 1, 8, 0, 0, 0)
	records, size := RecordParser{Sizes: RecordSizes, Location: time.UTC}.Parse(rec, 0)
	assert.Empty(t, records)
	assert.Zero(t, size)
}
