// Package store persists profiles, schemas, brokers and simulation status.
package store

import (
	"context"
	"errors"

	"fleetsim/internal/profile"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence collaborator read by the simulation runtime.
type Store interface {
	Profile(ctx context.Context, id string) (*profile.Profile, error)
	Schema(ctx context.Context, id string) (*profile.Schema, error)
	Broker(ctx context.Context, id string) (*profile.Broker, error)
	PatchStatus(ctx context.Context, profileID string, patch profile.StatusPatch) error
	Ping(ctx context.Context) error
}

// Document is the on-disk layout of a profiles file.
type Document struct {
	Brokers  []profile.Broker  `yaml:"brokers"`
	Schemas  []profile.Schema  `yaml:"schemas"`
	Profiles []profile.Profile `yaml:"profiles"`
}
