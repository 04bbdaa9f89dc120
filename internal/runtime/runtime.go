// Package runtime exposes the process-wide runtime level and server role
// consulted by gated tasks on every tick.
package runtime

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Level is the application lifecycle level.
type Level int32

const (
	LevelBooting Level = iota
	LevelRun
	LevelShutdown
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelBooting:
		return "booting"
	case LevelRun:
		return "run"
	case LevelShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// ServerRole classifies a node within a deployment. It is a coarse signal,
// distinct from exclusive ownership.
type ServerRole int32

const (
	RoleUnknown ServerRole = iota
	RoleSingle
	RoleLeader
	RoleReplica
)

// String implements fmt.Stringer.
func (r ServerRole) String() string {
	switch r {
	case RoleUnknown:
		return "unknown"
	case RoleSingle:
		return "single"
	case RoleLeader:
		return "leader"
	case RoleReplica:
		return "replica"
	default:
		return fmt.Sprintf("role(%d)", int32(r))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r ServerRole) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// ParseServerRole parses a configured role name. The empty string means single.
func ParseServerRole(s string) (ServerRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return RoleSingle, nil
	case "leader":
		return RoleLeader, nil
	case "replica":
		return RoleReplica, nil
	case "unknown":
		return RoleUnknown, nil
	default:
		return RoleUnknown, fmt.Errorf("runtime: unknown server role %q (want single, leader, replica or unknown)", s)
	}
}

// StatusProvider answers the runtime questions a gated task asks each tick.
// Implementations must be cheap and safe for concurrent use.
type StatusProvider interface {
	Level() Level
	ServerRole() ServerRole
}

// Status is a point-in-time view of the runtime facts used for gating.
type Status struct {
	Level          Level      `json:"level"`
	Role           ServerRole `json:"role"`
	ExclusiveOwner bool       `json:"exclusive_owner"`
}

// State is the mutable StatusProvider driven by the host.
type State struct {
	level atomic.Int32
	role  atomic.Int32
}

// Compile-time interface check.
var _ StatusProvider = (*State)(nil)

// NewState returns a State at LevelBooting with the given role.
func NewState(role ServerRole) *State {
	s := &State{}
	s.level.Store(int32(LevelBooting))
	s.role.Store(int32(role))
	return s
}

// Level implements StatusProvider.
func (s *State) Level() Level { return Level(s.level.Load()) }

// ServerRole implements StatusProvider.
func (s *State) ServerRole() ServerRole { return ServerRole(s.role.Load()) }

// SetLevel moves the process to level.
func (s *State) SetLevel(l Level) { s.level.Store(int32(l)) }

// SetServerRole changes the node role, e.g. after a config reload.
func (s *State) SetServerRole(r ServerRole) { s.role.Store(int32(r)) }
