package loader

import (
	"time"

	"github.com/google/uuid"

	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

// Session is the record of one load pass over a plugin root. The loader
// fills it in; once Load returns, the session is read-only.
type Session struct {
	ID        string    `json:"id"`
	Root      string    `json:"root"`
	StartedAt time.Time `json:"started_at"`

	// Duration covers discovery through the last committed unit.
	Duration time.Duration `json:"duration"`

	// Units holds one record per discovered candidate, in discovery
	// order, whatever state each one ended up in.
	Units []*captypes.Unit `json:"units"`

	// Diagnostics are session-level findings that belong to no single
	// unit, such as duplicate unit ids.
	Diagnostics []captypes.Check `json:"diagnostics,omitempty"`
}

func NewSession(root string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		Root:      root,
		StartedAt: time.Now(),
	}
}

// Counts tallies unit outcomes. Warned units are the subset of loaded
// units whose reports carry warnings, so loaded >= warned.
func (s *Session) Counts() (loaded, warned, failed int) {
	for _, u := range s.Units {
		switch u.State {
		case captypes.StateLoaded:
			loaded++
			if u.Report != nil && len(u.Report.Warnings()) > 0 {
				warned++
			}
		case captypes.StateFailed:
			failed++
		}
	}
	return loaded, warned, failed
}

// Unit returns the record for the given unit id, or nil when the id was
// never discovered.
func (s *Session) Unit(id string) *captypes.Unit {
	for _, u := range s.Units {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// Registrable returns the loaded units in discovery order.
func (s *Session) Registrable() []*captypes.Unit {
	var out []*captypes.Unit
	for _, u := range s.Units {
		if u.Registrable() {
			out = append(out, u)
		}
	}
	return out
}
