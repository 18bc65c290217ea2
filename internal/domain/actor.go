package domain

import (
	"fmt"
	"strings"
)

// SystemActorID identifies mutations made by background processes.
const SystemActorID = "system:reaper"

// Actor is the already-authenticated caller on whose behalf an operation runs.
type Actor struct {
	ID        string
	RequestID string
}

// SystemActor returns the actor used by the expiry reaper.
func SystemActor() Actor {
	return Actor{ID: SystemActorID}
}

// Validate rejects an empty actor identity.
func (a Actor) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("actor id is required: %w", ErrValidation)
	}
	return nil
}
