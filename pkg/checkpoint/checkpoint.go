// Package checkpoint persists fetch progress so an interrupted run can
// resume mid-pagination instead of starting over.
package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/secreport/secreport/internal/jsonutil"
)

// ErrClaimed reports that another live run has taken over the
// endpoint's progress file and advanced it past ours.
var ErrClaimed = errors.New("checkpoint claimed by another run")

// State is the progress of one paginated fetch: the next offset to
// request and every record accumulated so far. Owner identifies the
// run that wrote it; a resumed run adopts a dead owner's state.
type State struct {
	Offset  int              `json:"offset"`
	Results []map[string]any `json:"results"`
	Owner   string           `json:"owner,omitempty"`
}

// Manager reads and writes per-endpoint progress files under Dir.
// Saves are atomic: the state is written to a temp file and renamed
// into place, so a crash never leaves a half-written file behind.
type Manager struct {
	Dir string

	owner string
	mu    sync.Mutex
}

// NewManager returns a manager rooted at dir, creating it if needed.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		dir = "output"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Manager{Dir: dir, owner: uuid.NewString()}, nil
}

// Path returns the progress file for an endpoint, with path
// separators flattened so "/public/v0/findings" becomes
// "public_v0_findings_progress.json".
func (m *Manager) Path(endpoint string) string {
	slug := strings.ReplaceAll(strings.Trim(endpoint, "/"), "/", "_")
	return filepath.Join(m.Dir, slug+"_progress.json")
}

// Load returns the saved state for endpoint, or nil when none exists.
// A corrupt file is removed and treated as absent so one bad write
// cannot wedge every later run.
func (m *Manager) Load(endpoint string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.Path(endpoint)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var state State
	if err := jsonutil.Unmarshal(data, &state); err != nil {
		os.Remove(path)
		return nil, nil
	}
	return &state, nil
}

// Save writes state for endpoint atomically, stamping it with this
// run's owner id. If a different run has meanwhile written the file
// and advanced at least as far, Save returns ErrClaimed: two runs
// paging the same endpoint would corrupt each other's record sets.
func (m *Manager) Save(endpoint string, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.Path(endpoint)
	if data, err := os.ReadFile(path); err == nil {
		var cur State
		if jsonutil.Unmarshal(data, &cur) == nil &&
			cur.Owner != "" && cur.Owner != m.owner && cur.Offset >= state.Offset {
			return ErrClaimed
		}
	}

	state.Owner = m.owner
	data, err := jsonutil.Marshal(state)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Delete removes the progress file for endpoint. Missing files are
// not an error: a completed fetch deletes unconditionally.
func (m *Manager) Delete(endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.Path(endpoint))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
