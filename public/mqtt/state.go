package mqtt

import "strconv"

// State mirrors the connection state codes reported by the Arduino
// PubSubClient, so gateway logs read the same on a device and on a host.
type State int

const (
	StateConnectionTimeout State = -4
	StateConnectionLost    State = -3
	StateConnectFailed     State = -2
	StateDisconnected      State = -1
	StateConnected         State = 0
	StateBadProtocol       State = 1
	StateBadClientID       State = 2
	StateUnavailable       State = 3
	StateBadCredentials    State = 4
	StateUnauthorized      State = 5
)

func (s State) String() string {
	switch s {
	case StateConnectionTimeout:
		return "connection timeout"
	case StateConnectionLost:
		return "connection lost"
	case StateConnectFailed:
		return "connect failed"
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateBadProtocol:
		return "bad protocol"
	case StateBadClientID:
		return "bad client id"
	case StateUnavailable:
		return "server unavailable"
	case StateBadCredentials:
		return "bad credentials"
	case StateUnauthorized:
		return "unauthorized"
	}
	return "state " + strconv.Itoa(int(s))
}
