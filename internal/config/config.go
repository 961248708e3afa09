// Package config declares small flag-driven configuration structs, the
// way imulab-go-scim's cmd/internal/args package does: each struct owns
// its own Destination-bound cli.Flag list via a Flags() method instead of
// a central flag-parsing function.
package config

import "github.com/urfave/cli/v2"

// Profile is a deployment profile, affecting only the hello/isMaster
// response shape and read-preference validation (spec.md §6).
type Profile string

const (
	Standalone           Profile = "standalone"
	SingleNodeReplicaSet Profile = "singleNodeReplicaSet"
)

// Logging is the configuration options related to logging, mirroring
// cmd/internal/args.Logging.
type Logging struct {
	Level string
}

// Flags returns the cli.Flag set backing this struct's fields.
func (l *Logging) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Specify logger output level to `[INFO|ERROR|DEBUG|WARN|FATAL]`. Value defaults `INFO`",
			EnvVars:     []string{"LOG_LEVEL"},
			Value:       "INFO",
			Destination: &l.Level,
		},
	}
}

// Engine is the configuration options related to the engine's deployment
// profile.
type Engine struct {
	Profile        string
	ReplicaSetName string
}

// Flags returns the cli.Flag set backing this struct's fields.
func (e *Engine) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "profile",
			Usage:       "Deployment profile to `[standalone|singleNodeReplicaSet]`. Value defaults `standalone`",
			EnvVars:     []string{"MONGOMEM_PROFILE"},
			Value:       string(Standalone),
			Destination: &e.Profile,
		},
		&cli.StringFlag{
			Name:        "replica-set-name",
			Usage:       "Replica set name reported by hello/isMaster when profile is singleNodeReplicaSet",
			EnvVars:     []string{"MONGOMEM_REPLICA_SET_NAME"},
			Value:       "rs0",
			Destination: &e.ReplicaSetName,
		},
	}
}

// ResolvedProfile returns e.Profile as a Profile, defaulting to Standalone
// for any unrecognized value.
func (e *Engine) ResolvedProfile() Profile {
	if Profile(e.Profile) == SingleNodeReplicaSet {
		return SingleNodeReplicaSet
	}
	return Standalone
}
