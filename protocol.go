package zkclient

import (
	"fmt"
	"strings"
)

// Protocol is the command table and record sizes of one firmware family.
type Protocol struct {
	Name           string
	AttLogCmd      uint16
	ClearAttLogCmd uint16
	RecordSizes    []int
}

var (
	ProtocolStandard = Protocol{
		Name:           "standard",
		AttLogCmd:      CMD_ATTLOG,
		ClearAttLogCmd: CMD_CLEAR_ATTLOG,
		RecordSizes:    RecordSizes,
	}
	ProtocolLegacy = Protocol{
		Name:           "legacy",
		AttLogCmd:      CMD_OLD_ATTLOG,
		ClearAttLogCmd: CMD_OLD_CLEAR_ATTLOG,
		RecordSizes:    RecordSizes,
	}
)

// ProtocolMode selects which protocols a client speaks.
type ProtocolMode int

const (
	ModeStandard ProtocolMode = iota
	ModeLegacy
	// ModeAuto tries the standard table and falls back to the legacy one
	// when the standard command gets no usable reply, or a payload in which
	// no record decodes.
	ModeAuto
)

func (m ProtocolMode) protocols() []Protocol {
	switch m {
	case ModeLegacy:
		return []Protocol{ProtocolLegacy}
	case ModeAuto:
		return []Protocol{ProtocolStandard, ProtocolLegacy}
	}
	return []Protocol{ProtocolStandard}
}

func (m ProtocolMode) String() string {
	switch m {
	case ModeLegacy:
		return "legacy"
	case ModeAuto:
		return "auto"
	}
	return "standard"
}

func ParseProtocolMode(s string) (ProtocolMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return ModeStandard, nil
	case "legacy":
		return ModeLegacy, nil
	case "auto":
		return ModeAuto, nil
	}
	return ModeStandard, fmt.Errorf("unknown protocol %q", s)
}
