package frame

// CommandCode identifies the function of a frame. The values follow the Tuya
// LAN protocol function codes.
type CommandCode uint16

const (
	// CmdSessionStart opens session-key negotiation (host nonce).
	CmdSessionStart CommandCode = 0x0003

	// CmdSessionResponse carries the device nonce and auth tag.
	CmdSessionResponse CommandCode = 0x0004

	// CmdSessionFinish confirms the negotiated session key.
	CmdSessionFinish CommandCode = 0x0005

	// CmdControl carries datapoint writes to the device.
	CmdControl CommandCode = 0x0007

	// CmdStatus carries datapoint reports from the device, either as a
	// reply to CmdControl/CmdDPQuery or unsolicited.
	CmdStatus CommandCode = 0x0008

	// CmdHeartbeat is the keep-alive exchange.
	CmdHeartbeat CommandCode = 0x0009

	// CmdDPQuery requests a report of current datapoint values.
	CmdDPQuery CommandCode = 0x000A
)

// String returns the command name.
func (c CommandCode) String() string {
	switch c {
	case CmdSessionStart:
		return "SessionStart"
	case CmdSessionResponse:
		return "SessionResponse"
	case CmdSessionFinish:
		return "SessionFinish"
	case CmdControl:
		return "Control"
	case CmdStatus:
		return "Status"
	case CmdHeartbeat:
		return "Heartbeat"
	case CmdDPQuery:
		return "DPQuery"
	default:
		return "Unknown"
	}
}

// IsSessionSetup reports whether the command belongs to session-key
// negotiation. Setup frames are protected by the credential-derived auth key
// rather than a session key.
func (c CommandCode) IsSessionSetup() bool {
	switch c {
	case CmdSessionStart, CmdSessionResponse, CmdSessionFinish:
		return true
	default:
		return false
	}
}
