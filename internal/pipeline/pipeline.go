// Package pipeline runs ordered request, response and error stages around a
// backend call.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"console-gateway/internal/model"
)

// Phase selects the invocation point a stage is registered for.
type Phase int

const (
	BeforeSend Phase = iota
	AfterReceive
	OnError
)

func (p Phase) String() string {
	switch p {
	case BeforeSend:
		return "before-send"
	case AfterReceive:
		return "after-receive"
	case OnError:
		return "on-error"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// RequestStage shapes an outgoing request.
type RequestStage interface {
	BeforeSend(ctx context.Context, req *model.RequestConfig) (*model.RequestConfig, error)
}

// RequestCleaner is implemented by request stages that need to undo
// bookkeeping when the before-send phase fails at or after them.
type RequestCleaner interface {
	CleanupRequest(ctx context.Context, req *model.RequestConfig, err error)
}

// ResponseCleaner is implemented by response stages that hold per-call
// state released in AfterReceive. When an after-receive stage fails, the
// failing stage and every stage after it are asked to release that state.
type ResponseCleaner interface {
	CleanupResponse(ctx context.Context, env *model.ResponseEnvelope, err error)
}

// ResponseStage shapes a successful reply.
type ResponseStage interface {
	AfterReceive(ctx context.Context, env *model.ResponseEnvelope) (*model.ResponseEnvelope, error)
}

// ErrorStage is offered every failed call. It returns the error to hand to
// the next stage (cause itself when unchanged). A non-nil second result
// reports a failure of the stage; it is logged and the chain continues.
type ErrorStage interface {
	OnError(ctx context.Context, req *model.RequestConfig, cause error) (error, error)
}

// RequestFunc adapts a function to RequestStage.
type RequestFunc func(ctx context.Context, req *model.RequestConfig) (*model.RequestConfig, error)

func (f RequestFunc) BeforeSend(ctx context.Context, req *model.RequestConfig) (*model.RequestConfig, error) {
	return f(ctx, req)
}

// ResponseFunc adapts a function to ResponseStage.
type ResponseFunc func(ctx context.Context, env *model.ResponseEnvelope) (*model.ResponseEnvelope, error)

func (f ResponseFunc) AfterReceive(ctx context.Context, env *model.ResponseEnvelope) (*model.ResponseEnvelope, error) {
	return f(ctx, env)
}

// ErrorFunc adapts a function to ErrorStage.
type ErrorFunc func(ctx context.Context, req *model.RequestConfig, cause error) (error, error)

func (f ErrorFunc) OnError(ctx context.Context, req *model.RequestConfig, cause error) (error, error) {
	return f(ctx, req, cause)
}

// Descriptor registers one stage for one phase. Stage must implement the
// interface matching Phase.
type Descriptor struct {
	ID       string
	Phase    Phase
	Priority int
	Enabled  bool
	Stage    any

	seq uint64
}

// Request builds an enabled before-send descriptor.
func Request(id string, priority int, s RequestStage) Descriptor {
	return Descriptor{ID: id, Phase: BeforeSend, Priority: priority, Enabled: true, Stage: s}
}

// Response builds an enabled after-receive descriptor.
func Response(id string, priority int, s ResponseStage) Descriptor {
	return Descriptor{ID: id, Phase: AfterReceive, Priority: priority, Enabled: true, Stage: s}
}

// Error builds an enabled on-error descriptor.
func Error(id string, priority int, s ErrorStage) Descriptor {
	return Descriptor{ID: id, Phase: OnError, Priority: priority, Enabled: true, Stage: s}
}

func (d Descriptor) validate() error {
	if d.ID == "" {
		return fmt.Errorf("stage id is empty")
	}
	var ok bool
	switch d.Phase {
	case BeforeSend:
		_, ok = d.Stage.(RequestStage)
	case AfterReceive:
		_, ok = d.Stage.(ResponseStage)
	case OnError:
		_, ok = d.Stage.(ErrorStage)
	}
	if !ok {
		return fmt.Errorf("stage %q does not implement %s", d.ID, d.Phase)
	}
	return nil
}

// StageError wraps a failure raised by a before-send or after-receive stage.
// These are bugs in stage logic, not classified backend errors.
type StageError struct {
	ID    string
	Phase Phase
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s stage %q: %v", e.Phase, e.ID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline holds an ordered set of stage descriptors. It is safe for
// concurrent use; each run works on a snapshot of the stages.
type Pipeline struct {
	mu     sync.RWMutex
	stages []Descriptor
	seq    uint64
	logger *slog.Logger
}

// New creates an empty Pipeline.
func New(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{logger: logger.With("component", "pipeline")}
}

// Use inserts d, or replaces the stage with the same ID. A replaced stage
// keeps its original insertion rank for tie-breaking.
func (p *Pipeline) Use(d Descriptor) error {
	if err := d.validate(); err != nil {
		return fmt.Errorf("pipeline: use: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	replaced := false
	for i := range p.stages {
		if p.stages[i].ID == d.ID {
			d.seq = p.stages[i].seq
			p.stages[i] = d
			replaced = true
			break
		}
	}
	if !replaced {
		p.seq++
		d.seq = p.seq
		p.stages = append(p.stages, d)
	}
	p.sortLocked()
	return nil
}

// MustUse is Use for static wiring, panicking on an invalid descriptor.
func (p *Pipeline) MustUse(ds ...Descriptor) {
	for _, d := range ds {
		if err := p.Use(d); err != nil {
			panic(err)
		}
	}
}

// Remove deletes the stage with the given id. Unknown ids are ignored.
func (p *Pipeline) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.stages {
		if p.stages[i].ID == id {
			p.stages = append(p.stages[:i:i], p.stages[i+1:]...)
			break
		}
	}
	p.sortLocked()
}

// SetEnabled toggles a stage without changing its position. It reports
// whether the id was found.
func (p *Pipeline) SetEnabled(id string, enabled bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.stages {
		if p.stages[i].ID == id {
			p.stages[i].Enabled = enabled
			return true
		}
	}
	return false
}

func (p *Pipeline) sortLocked() {
	sort.SliceStable(p.stages, func(i, j int) bool {
		if p.stages[i].Priority != p.stages[j].Priority {
			return p.stages[i].Priority < p.stages[j].Priority
		}
		return p.stages[i].seq < p.stages[j].seq
	})
}

// Stages returns a snapshot of all descriptors grouped by phase, each
// phase in execution order.
func (p *Pipeline) Stages() []Descriptor {
	p.mu.RLock()
	out := append([]Descriptor(nil), p.stages...)
	p.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Phase < out[j].Phase })
	return out
}

func (p *Pipeline) snapshot(phase Phase) []Descriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Descriptor, 0, len(p.stages))
	for _, d := range p.stages {
		if d.Phase == phase && d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// RunBeforeSend applies every enabled before-send stage in order, each one
// receiving the previous one's output. When a stage fails, its cleanup hook
// runs, followed by the hooks of the stages that already ran (newest
// first), and the error is returned without running later stages.
func (p *Pipeline) RunBeforeSend(ctx context.Context, req *model.RequestConfig) (*model.RequestConfig, error) {
	stages := p.snapshot(BeforeSend)
	for i, d := range stages {
		next, err := d.Stage.(RequestStage).BeforeSend(ctx, req)
		if err != nil {
			for j := i; j >= 0; j-- {
				if c, ok := stages[j].Stage.(RequestCleaner); ok {
					c.CleanupRequest(ctx, req, err)
				}
			}
			return nil, &StageError{ID: d.ID, Phase: BeforeSend, Err: err}
		}
		if next != nil {
			req = next
		}
	}
	return req, nil
}

// RunAfterReceive applies every enabled after-receive stage in order. When
// a stage fails, the cleanup hooks of that stage and of the stages that did
// not run are called, and the error is returned as a *StageError.
func (p *Pipeline) RunAfterReceive(ctx context.Context, env *model.ResponseEnvelope) (*model.ResponseEnvelope, error) {
	stages := p.snapshot(AfterReceive)
	for i, d := range stages {
		s := d.Stage.(ResponseStage)
		next, err := s.AfterReceive(ctx, env)
		if err != nil {
			for _, rest := range stages[i:] {
				if c, ok := rest.Stage.(ResponseCleaner); ok {
					c.CleanupResponse(ctx, env, err)
				}
			}
			return nil, &StageError{ID: d.ID, Phase: AfterReceive, Err: err}
		}
		if next != nil {
			env = next
		}
	}
	return env, nil
}

// RunOnError offers cause to every enabled on-error stage in order and
// returns the final error. A stage that fails or panics is logged and
// skipped; it never stops delivery of the error to the caller.
func (p *Pipeline) RunOnError(ctx context.Context, cause error, req *model.RequestConfig) error {
	for _, d := range p.snapshot(OnError) {
		cause = p.offer(ctx, d, req, cause)
	}
	return cause
}

func (p *Pipeline) offer(ctx context.Context, d Descriptor, req *model.RequestConfig, cause error) (out error) {
	out = cause
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("error stage panicked",
				"stage", d.ID,
				"panic", fmt.Sprint(r),
				"correlation_id", req.CorrelationID(),
			)
			out = cause
		}
	}()

	next, err := d.Stage.(ErrorStage).OnError(ctx, req, cause)
	if err != nil {
		p.logger.Error("error stage failed",
			"stage", d.ID,
			"err", err,
			"correlation_id", req.CorrelationID(),
		)
		return cause
	}
	if next != nil {
		return next
	}
	return cause
}
