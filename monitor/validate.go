package monitor

import (
	"fmt"
	"time"

	"github.com/hazyhaar/vigil/monitor/internal/store"
	"github.com/hazyhaar/vigil/safeurl"
)

const (
	maxOwnerLen = 256
	maxURLLen   = 4096

	// MinCheckFrequency is the tightest allowed cadence.
	MinCheckFrequency = time.Minute
	// MaxCheckFrequency is the loosest allowed cadence.
	MaxCheckFrequency = 7 * 24 * time.Hour
)

// allowedTargetTypes is the set of valid target type values.
var allowedTargetTypes = map[string]bool{
	store.TypeWebsite:         true,
	store.TypeLinkedInProfile: true,
	store.TypeLinkedInCompany: true,
}

// validateTargetInput validates a target's fields before insert.
func validateTargetInput(t *store.Target) error {
	if t.Owner == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if len(t.Owner) > maxOwnerLen {
		return fmt.Errorf("%w: owner exceeds %d characters", ErrInvalidInput, maxOwnerLen)
	}

	if t.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if len(t.URL) > maxURLLen {
		return fmt.Errorf("%w: url exceeds %d characters", ErrInvalidInput, maxURLLen)
	}
	if err := safeurl.ValidateLoose(t.URL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if !allowedTargetTypes[t.Type] {
		return fmt.Errorf("%w: unknown target type %q", ErrInvalidInput, t.Type)
	}

	freq := time.Duration(t.CheckFrequency) * time.Millisecond
	if freq < MinCheckFrequency || freq > MaxCheckFrequency {
		return fmt.Errorf("%w: check_frequency must be between %s and %s",
			ErrInvalidInput, MinCheckFrequency, MaxCheckFrequency)
	}
	return nil
}
