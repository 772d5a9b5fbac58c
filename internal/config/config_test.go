package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siwa2904/zkclient"
)

const sample = `
schedule: "0 */10 * * * *"
log_level: info
store:
  path: /var/lib/zkpoll/punches.db
devices:
  - id: front-door
    host: 192.168.1.201
    timeout: 2s
    clear_after_read: true
  - host: 192.168.1.202
    port: 4371
    transport: tcp
    protocol: auto
    pin: 1234
    timezone: UTC
    schedule: "@every 1m"
    disable_while_reading: false
    strict_ack: true
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "0 */10 * * * *", c.Schedule)
	assert.Equal(t, "/var/lib/zkpoll/punches.db", c.Store.Path)
	require.Len(t, c.Devices, 2)

	front := c.Devices[0]
	assert.Equal(t, "front-door", front.ID)
	assert.Equal(t, zkclient.DefaultPort, front.Port)
	assert.Equal(t, 2*time.Second, front.Timeout)
	assert.True(t, front.ClearAfterRead)
	assert.True(t, front.Disables())
	assert.Equal(t, c.Schedule, c.ScheduleFor(front))

	back := c.Devices[1]
	assert.Equal(t, "192.168.1.202:4371", back.ID)
	assert.False(t, back.Disables())
	assert.Equal(t, "@every 1m", c.ScheduleFor(back))

	opts, err := back.ClientOptions()
	require.NoError(t, err)
	zk := zkclient.NewZK(back.Host, back.Port, opts...)
	assert.Equal(t, zkclient.TCP, zk.Endpoint().Kind)
	assert.Equal(t, "standard", zk.Protocol().Name)
}

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]byte("devices:\n  - host: 10.0.0.9\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, c.Schedule)
	assert.Equal(t, DefaultStore, c.Store.Path)
	assert.Equal(t, "10.0.0.9:4370", c.Devices[0].ID)
}

func TestValidateCollectsErrors(t *testing.T) {
	_, err := Parse([]byte(`
schedule: "every now and then"
devices:
  - id: a
    host: ""
  - id: a
    host: 10.0.0.1
    transport: serial
  - id: c
    host: 10.0.0.2
    port: 70000
`))
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"schedule", "host is required", "duplicate id", "serial", "out of range"} {
		assert.True(t, strings.Contains(msg, want), "missing %q in %s", want, msg)
	}
}

func TestValidateNoDevices(t *testing.T) {
	_, err := Parse([]byte("schedule: \"@hourly\"\n"))
	assert.ErrorContains(t, err, "no devices")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zkpoll.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Devices, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
