package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable modules decode their section of the config file. Configure
// receives the raw node and runs before Provision; modules without a
// section are not configured at all.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules acquire what they need (databases, runners, other
// modules' services) and publish their own services.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their provisioned state. Validate must not have
// side effects.
type Validator interface {
	Validate() error
}

// Starter modules begin background work: listeners, lease loops, task
// registrations. Start runs once every module has been loaded.
type Starter interface {
	Start() error
}

// Stopper modules release what they hold. Stop runs in reverse load order
// and must return once ctx is done.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader modules apply a new configuration without a restart. The
// context carries the new module sections; each module re-reads its own
// with ModuleConfig and applies what can change live.
type Reloader interface {
	Reload(ctx *AppContext) error
}
