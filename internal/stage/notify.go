package stage

import (
	"context"
	"errors"
	"sync"

	"console-gateway/internal/apierror"
	"console-gateway/internal/model"
)

// NotificationType classifies a user-facing notification.
type NotificationType string

const (
	NotifySuccess NotificationType = "success"
	NotifyError   NotificationType = "error"
)

// Notification is a message for the console's snackbar.
type Notification struct {
	Type          NotificationType `json:"type"`
	Message       string           `json:"message"`
	CorrelationID string           `json:"correlationId,omitempty"`
}

// defaultErrorMessage is used when notify-error carries no text.
const defaultErrorMessage = "The request failed."

// Notifier fans notifications out to subscribers. Subscribers run under the
// notifier lock and must not call back into it.
type Notifier struct {
	mu   sync.Mutex
	subs map[uint64]func(Notification)
	next uint64
}

// NewNotifier creates a Notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[uint64]func(Notification))}
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier) Subscribe(fn func(Notification)) (dispose func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.next++
	id := n.next
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Emit delivers note to every subscriber.
func (n *Notifier) Emit(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, fn := range n.subs {
		fn(note)
	}
}

// Notify is the pipeline stage behind the notify-success and notify-error
// directives.
type Notify struct {
	notifier *Notifier
}

// NewNotify creates a Notify stage.
func NewNotify(n *Notifier) *Notify {
	return &Notify{notifier: n}
}

// BeforeSend moves the notification directives into metadata so they are
// never transmitted.
func (s *Notify) BeforeSend(_ context.Context, req *model.RequestConfig) (*model.RequestConfig, error) {
	if msg, ok := req.Header.Take(HeaderNotifySuccess); ok {
		setMeta(req, metaNotifySuccess, msg)
	}
	if msg, ok := req.Header.Take(HeaderNotifyError); ok {
		setMeta(req, metaNotifyError, msg)
	}
	return req, nil
}

// AfterReceive emits the success message, if one was requested.
func (s *Notify) AfterReceive(_ context.Context, env *model.ResponseEnvelope) (*model.ResponseEnvelope, error) {
	req := env.Request
	if req == nil {
		return env, nil
	}
	if msg, ok := req.Metadata.String(metaNotifySuccess); ok && msg != "" {
		s.notifier.Emit(Notification{
			Type:          NotifySuccess,
			Message:       msg,
			CorrelationID: req.CorrelationID(),
		})
	}
	return env, nil
}

// OnError emits the error message, if one was requested. The error passes
// through unchanged.
func (s *Notify) OnError(_ context.Context, req *model.RequestConfig, cause error) (error, error) {
	if req == nil {
		return cause, nil
	}
	directive, ok := req.Metadata.String(metaNotifyError)
	if !ok {
		return cause, nil
	}

	msg := directive
	if directive == NotifyErrorFromCause || directive == "" {
		msg = causeMessage(cause)
	}
	if msg == "" {
		msg = defaultErrorMessage
	}

	s.notifier.Emit(Notification{
		Type:          NotifyError,
		Message:       msg,
		CorrelationID: req.CorrelationID(),
	})
	return cause, nil
}

func causeMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *apierror.ClassifiedError
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return err.Error()
}
