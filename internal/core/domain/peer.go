package domain

import (
	"strconv"
	"time"
)

type PeerID uint64

func (id PeerID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

type Role int

const (
	RoleUnclassified Role = iota
	RoleController
	RoleActuatorDevice
	RoleCameraDevice
)

func (r Role) String() string {
	switch r {
	case RoleUnclassified:
		return "unclassified"
	case RoleController:
		return "controller"
	case RoleActuatorDevice:
		return "actuator"
	case RoleCameraDevice:
		return "camera"
	default:
		return "unknown"
	}
}

// IsDevice reports whether the role is held by at most one peer at a time.
func (r Role) IsDevice() bool {
	return r == RoleActuatorDevice || r == RoleCameraDevice
}

// IsController reports whether the peer is routed as an operator browser.
// Peers that never sent a handshake count as controllers.
func (r Role) IsController() bool {
	return r == RoleController || r == RoleUnclassified
}

type PeerState int

const (
	PeerOpen PeerState = iota
	PeerClosed
)

func (s PeerState) String() string {
	if s == PeerOpen {
		return "open"
	}
	return "closed"
}

// ReplyPrefix marks unicast replies generated by the relay itself.
const ReplyPrefix = "Server: "

type Peer struct {
	ID          PeerID
	Role        Role
	State       PeerState
	RemoteAddr  string
	ConnectedAt time.Time
}

// DeviceLabels maps the device roles to the names used in handshakes and notices.
type DeviceLabels struct {
	Actuator string
	Camera   string
}

func DefaultDeviceLabels() DeviceLabels {
	return DeviceLabels{
		Actuator: "ESP32-DevKit",
		Camera:   "ESP32-CAM",
	}
}

// Label returns the human readable name for a device role.
func (l DeviceLabels) Label(r Role) string {
	switch r {
	case RoleActuatorDevice:
		return l.Actuator
	case RoleCameraDevice:
		return l.Camera
	default:
		return "Client"
	}
}

// Handshake returns the literal a device sends to claim the role.
func (l DeviceLabels) Handshake(r Role) string {
	return l.Label(r) + " connected!"
}

// Classify maps a handshake literal to the role it claims.
func (l DeviceLabels) Classify(text string) (Role, bool) {
	switch text {
	case l.Handshake(RoleActuatorDevice):
		return RoleActuatorDevice, true
	case l.Handshake(RoleCameraDevice):
		return RoleCameraDevice, true
	default:
		return RoleUnclassified, false
	}
}
