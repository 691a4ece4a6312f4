package certificates

import (
	"sync"

	"github.com/leapstack-labs/certdesk/internal/table"
)

// view is one mounted certificate table, owned by an updates stream.
type view struct {
	ctrl   *table.Controller
	export *table.ExportPipeline
	// updates is the view's bus subscription.
	updates chan struct{}
}

// registry tracks the mounted views by id.
type registry struct {
	mu    sync.Mutex
	views map[string]*view
}

func newRegistry() *registry {
	return &registry{views: make(map[string]*view)}
}

// put registers v under id and returns the view it replaced, if any.
func (r *registry) put(id string, v *view) *view {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.views[id]
	r.views[id] = v
	return old
}

func (r *registry) get(id string) (*view, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[id]
	return v, ok
}

// remove unregisters id if it still refers to v.
func (r *registry) remove(id string, v *view) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.views[id] == v {
		delete(r.views, id)
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
