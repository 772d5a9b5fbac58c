package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siwa2904/zkclient"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "attendance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func punch(id string, hour, state int) zkclient.AttendanceRecord {
	return zkclient.AttendanceRecord{
		ID:        id,
		Timestamp: time.Date(2024, time.June, 1, hour, 0, 0, 0, time.UTC),
		State:     state,
	}
}

func TestSaveAttendanceDeduplicates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	n, err := s.SaveAttendance(ctx, "gate", []zkclient.AttendanceRecord{punch("007", 8, 0), punch("007", 17, 1)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// the same log read again, plus one new punch
	n, err = s.SaveAttendance(ctx, "gate", []zkclient.AttendanceRecord{punch("007", 8, 0), punch("007", 17, 1), punch("12", 9, 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// same punch on another device is distinct
	n, err = s.SaveAttendance(ctx, "lobby", []zkclient.AttendanceRecord{punch("007", 8, 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.SaveAttendance(ctx, "gate", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListAttendance(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.SaveAttendance(ctx, "gate", []zkclient.AttendanceRecord{punch("1", 17, 1), punch("1", 8, 0)})
	require.NoError(t, err)
	_, err = s.SaveAttendance(ctx, "lobby", []zkclient.AttendanceRecord{punch("2", 9, 0)})
	require.NoError(t, err)

	all, err := s.ListAttendance(ctx, "", time.Time{}, time.UTC)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 8, all[0].Timestamp.Hour())
	assert.Equal(t, "lobby", all[1].DeviceID)
	assert.Equal(t, 1, all[2].State)

	since := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	gate, err := s.ListAttendance(ctx, "gate", since, time.UTC)
	require.NoError(t, err)
	require.Len(t, gate, 1)
	assert.Equal(t, Punch{DeviceID: "gate", UserID: "1", Timestamp: time.Date(2024, time.June, 1, 17, 0, 0, 0, time.UTC), State: 1}, gate[0])
}

func TestPolls(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	last, err := s.LastPoll(ctx, "gate")
	require.NoError(t, err)
	assert.Nil(t, last)

	at := time.Date(2024, time.June, 1, 8, 5, 0, 0, time.UTC)
	require.NoError(t, s.RecordPoll(ctx, Poll{RunID: "r1", DeviceID: "gate", PolledAt: at, Fetched: 3, Stored: 2}))
	require.NoError(t, s.RecordPoll(ctx, Poll{RunID: "r2", DeviceID: "gate", PolledAt: at.Add(time.Minute), Error: "no reply"}))

	last, err = s.LastPoll(ctx, "gate")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "r2", last.RunID)
	assert.Equal(t, "no reply", last.Error)
	assert.True(t, at.Add(time.Minute).Equal(last.PolledAt))
}
