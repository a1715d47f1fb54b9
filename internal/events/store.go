// Package events collects and forwards the per-pair updates of a run.
package events

import (
	"encoding/json"
	"io"
	"sort"
	"sync"

	"github.com/timvw/prompt-patrol/internal/model"
)

// Recorder keeps every update it observes. It is safe for concurrent use and
// its Observe method can be passed directly as an engine observer.
type Recorder struct {
	mu      sync.RWMutex
	updates []model.Update
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Observe(u model.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

// Updates returns the recorded updates in arrival order.
func (r *Recorder) Updates() []model.Update {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Update, len(r.updates))
	copy(out, r.updates)
	return out
}

// ByResponse groups the recorded updates by response text: each distinct
// response maps to the sorted ids of the predicates it satisfied. Responses
// that satisfied nothing map to an empty list.
func (r *Recorder) ByResponse() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	passing := make(map[string]map[string]struct{})
	for _, u := range r.updates {
		ids, ok := passing[u.Response]
		if !ok {
			ids = make(map[string]struct{})
			passing[u.Response] = ids
		}
		if u.Passed {
			ids[u.PredicateID] = struct{}{}
		}
	}

	result := make(map[string][]string, len(passing))
	for response, ids := range passing {
		list := make([]string, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		sort.Strings(list)
		result[response] = list
	}
	return result
}

// NewJSONLWriter returns an observer that writes each update to w as one
// JSON object per line. Writes are serialized; write errors are dropped.
func NewJSONLWriter(w io.Writer) func(model.Update) {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(u model.Update) {
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(u)
	}
}

// Tee fans one update out to every non-nil observer, in argument order.
// It returns nil when none are given.
func Tee(observers ...func(model.Update)) func(model.Update) {
	var live []func(model.Update)
	for _, o := range observers {
		if o != nil {
			live = append(live, o)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return func(u model.Update) {
		for _, o := range live {
			o(u)
		}
	}
}
