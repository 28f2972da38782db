// Package runid stamps every simulation run with a unique identifier, so
// two runs writing probe data to the same log sink directory never
// collide (SPEC_FULL.md's ambient stack; grounded on
// roach88-nysm/internal/engine/flow.go's use of google/uuid for
// run-scoped identifiers).
package runid

import "github.com/google/uuid"

// ID uniquely names one distributed-simulator run.
type ID string

// New returns a fresh, randomly generated run ID.
func New() ID {
	return ID(uuid.NewString())
}

// String returns the run ID as a string.
func (id ID) String() string { return string(id) }
