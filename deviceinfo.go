package zkclient

import (
	"strings"
	"time"
)

// DeviceInfo collects the best-effort identity queries. Many firmwares return
// placeholder values, so none of these fields identify a terminal reliably.
type DeviceInfo struct {
	Name            string `json:"name,omitempty"`
	SerialNumber    string `json:"serial_number,omitempty"`
	Platform        string `json:"platform,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	MAC             string `json:"mac,omitempty"`
}

func (zk *ZK) GetDeviceName() (string, error)   { return zk.queryOption("~DeviceName") }
func (zk *ZK) GetSerialNumber() (string, error) { return zk.queryOption("~SerialNumber") }
func (zk *ZK) GetPlatform() (string, error)     { return zk.queryOption("~Platform") }
func (zk *ZK) GetMac() (string, error)          { return zk.queryOption("MAC") }

// GetFirmwareVersion asks with CMD_VERSION.
func (zk *ZK) GetFirmwareVersion() (string, error) {
	res, err := zk.query(CMD_VERSION, nil, zk.infoTimeout)
	if err != nil {
		return "", err
	}
	return cleanString(res.Data), nil
}

// GetDeviceInfo runs every identity query and keeps what answered. It only
// fails when nothing did.
func (zk *ZK) GetDeviceInfo() (*DeviceInfo, error) {
	info := &DeviceInfo{}
	var firstErr error
	answered := 0
	for _, q := range []struct {
		dst *string
		get func() (string, error)
	}{
		{&info.Name, zk.GetDeviceName},
		{&info.SerialNumber, zk.GetSerialNumber},
		{&info.Platform, zk.GetPlatform},
		{&info.FirmwareVersion, zk.GetFirmwareVersion},
		{&info.MAC, zk.GetMac},
	} {
		v, err := q.get()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		*q.dst = v
		answered++
	}
	if answered == 0 {
		return nil, firstErr
	}
	return info, nil
}

// GetTime reads the terminal clock.
func (zk *ZK) GetTime() (time.Time, error) {
	res, err := zk.query(CMD_GET_TIME, nil, zk.infoTimeout)
	if err != nil {
		return time.Time{}, err
	}
	t, err := unpackUint32(res.Data)
	if err != nil {
		return time.Time{}, err
	}
	return decodeCompactTime(t, zk.loc), nil
}

// queryOption sends a CMD_DEVICE key and returns the value from a
// "key=value" reply.
func (zk *ZK) queryOption(key string) (string, error) {
	res, err := zk.query(CMD_DEVICE, append([]byte(key), 0), zk.infoTimeout)
	if err != nil {
		return "", err
	}
	s := cleanString(res.Data)
	if i := strings.IndexByte(s, '='); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s), nil
}

// query is a request that must be answered with ACK_OK. The timeout is
// passed per call; the connection settings are left alone.
func (zk *ZK) query(command uint16, payload []byte, timeout time.Duration) (*Response, error) {
	if !zk.state.Connected() {
		return nil, ErrNotConnected
	}
	res, err := zk.exchange(command, payload, zk.bufferSize, timeout)
	if err != nil {
		return nil, err
	}
	if res.Header.Command != CMD_ACK_OK {
		return nil, &ProtocolError{Request: command, Expected: CMD_ACK_OK, Got: res.Header.Command}
	}
	return res, nil
}

func cleanString(b []byte) string {
	return strings.TrimSpace(strings.Trim(string(b), "\x00"))
}
