package stage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"console-gateway/internal/model"
)

// LoadingListener is told when loading starts (true) or stops (false).
type LoadingListener func(active bool)

// Tracker holds the set of in-flight calls that asked for a loading
// indicator. Listeners hear only the boundary transitions: 0→1 and N→0.
// They run under the tracker lock and must not call back into it.
type Tracker struct {
	mu        sync.Mutex
	inflight  map[string]struct{}
	listeners map[uint64]LoadingListener
	next      uint64
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		inflight:  make(map[string]struct{}),
		listeners: make(map[uint64]LoadingListener),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (t *Tracker) Subscribe(fn LoadingListener) (dispose func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	id := t.next
	t.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.listeners, id)
			t.mu.Unlock()
		})
	}
}

// Start records id as in flight.
func (t *Tracker) Start(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.inflight[id]; ok {
		return
	}
	t.inflight[id] = struct{}{}
	if len(t.inflight) == 1 {
		t.notifyLocked(true)
	}
}

// Done removes id. Unknown ids are ignored.
func (t *Tracker) Done(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.inflight[id]; !ok {
		return
	}
	delete(t.inflight, id)
	if len(t.inflight) == 0 {
		t.notifyLocked(false)
	}
}

// InFlight returns the number of tracked calls.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// Active reports whether any tracked call is in flight.
func (t *Tracker) Active() bool {
	return t.InFlight() > 0
}

func (t *Tracker) notifyLocked(active bool) {
	for _, fn := range t.listeners {
		fn(active)
	}
}

// Loading is the pipeline stage driving a Tracker from the show-loading
// directive.
type Loading struct {
	tracker *Tracker
	newID   func() string
}

// NewLoading creates a Loading stage. Calls without a correlation id get a
// fresh UUID.
func NewLoading(t *Tracker) *Loading {
	return &Loading{tracker: t, newID: uuid.NewString}
}

// BeforeSend strips the directive and, when it was present, starts tracking
// the call.
func (s *Loading) BeforeSend(_ context.Context, req *model.RequestConfig) (*model.RequestConfig, error) {
	if _, ok := req.Header.Take(HeaderShowLoading); !ok {
		return req, nil
	}
	id := req.EnsureCorrelationID(s.newID)
	setMeta(req, metaLoadingID, id)
	s.tracker.Start(id)
	return req, nil
}

// CleanupRequest stops tracking a call whose before-send phase failed.
func (s *Loading) CleanupRequest(_ context.Context, req *model.RequestConfig, _ error) {
	s.finish(req)
}

// AfterReceive stops tracking a completed call.
func (s *Loading) AfterReceive(_ context.Context, env *model.ResponseEnvelope) (*model.ResponseEnvelope, error) {
	s.finish(env.Request)
	return env, nil
}

// CleanupResponse stops tracking a call whose after-receive phase failed
// before this stage ran.
func (s *Loading) CleanupResponse(_ context.Context, env *model.ResponseEnvelope, _ error) {
	s.finish(env.Request)
}

// OnError stops tracking a failed call. The error passes through unchanged.
func (s *Loading) OnError(_ context.Context, req *model.RequestConfig, cause error) (error, error) {
	s.finish(req)
	return cause, nil
}

func (s *Loading) finish(req *model.RequestConfig) {
	if req == nil {
		return
	}
	if id, ok := req.Metadata.String(metaLoadingID); ok {
		s.tracker.Done(id)
	}
}
