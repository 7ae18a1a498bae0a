package retell

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InputKind enumerates everything that can move the call state machine.
type InputKind int

const (
	InputToggle InputKind = iota
	InputCredentialFailed
	InputStartFailed
	InputCallStarted
	InputCallEnded
	InputCallError
)

// Input is one step for Transition. Message is only read by the failure
// kinds.
type Input struct {
	Kind    InputKind
	Message string
}

// Effect is the side effect a transition asks the controller to perform.
type Effect int

const (
	EffectNone Effect = iota
	EffectFetchCredential
	EffectStopCall
)

// Transition is the call state machine. It is pure; Controller performs
// the returned effect.
func Transition(s UIState, in Input) (UIState, Effect) {
	switch in.Kind {
	case InputToggle:
		switch s.Status {
		case StatusCalling:
			return s, EffectNone
		case StatusActive:
			s.Status = StatusIdle
			return s, EffectStopCall
		default:
			return UIState{Status: StatusCalling}, EffectFetchCredential
		}
	case InputCredentialFailed, InputStartFailed:
		return UIState{Status: StatusError, ErrorMessage: orDefault(in.Message, MsgStartFailed)}, EffectNone
	case InputCallStarted:
		s.Status = StatusActive
		return s, EffectNone
	case InputCallEnded:
		s.Status = StatusIdle
		return s, EffectNone
	case InputCallError:
		return UIState{Status: StatusError, ErrorMessage: orDefault(in.Message, MsgCallError)}, EffectNone
	}
	return s, EffectNone
}

// InputFromEvent maps a call client event onto a state machine input.
func InputFromEvent(ev CallEvent) (Input, bool) {
	switch ev.Type {
	case EventCallStarted:
		return Input{Kind: InputCallStarted}, true
	case EventCallEnded:
		return Input{Kind: InputCallEnded}, true
	case EventError:
		return Input{Kind: InputCallError, Message: ev.Message}, true
	}
	return Input{}, false
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

func WithLogger(logger *Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// Controller owns one call client for its lifetime and drives the call
// state machine from user toggles and the client's events.
type Controller struct {
	source  CredentialSource
	client  CallClient
	logger  *Logger
	metrics *Metrics

	mu      sync.Mutex
	state   UIState
	attempt uint64
	// tracking is true between a successful credential fetch and the end
	// of that call; callID is the call being tracked.
	tracking bool
	callID   string
	seq      uint64

	handlersMu sync.Mutex
	handlers   map[int]StateHandler
	nextID     int

	notifyMu  sync.Mutex
	delivered uint64

	cancel context.CancelFunc
	loop   chan struct{}
	once   sync.Once
}

func NewController(source CredentialSource, client CallClient, opts ...ControllerOption) *Controller {
	c := &Controller{
		source:   source,
		client:   client,
		logger:   GetGlobalLogger(),
		state:    UIState{Status: StatusIdle},
		handlers: make(map[int]StateHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("call-controller")
	return c
}

// Open starts consuming the client's events. Close must be called to
// release the client.
func (c *Controller) Open(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.loop = make(chan struct{})
	go c.run(ctx, c.loop)
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	events := c.client.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			c.HandleEvent(ev)
		}
	}
}

// Close stops the event loop, stops any call in progress and closes the
// client. Subscribers are dropped. It is safe to call more than once.
func (c *Controller) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		cancel, loop := c.cancel, c.loop
		callID := c.callID
		c.attempt++
		c.tracking = false
		c.callID = ""
		c.mu.Unlock()

		if cancel != nil {
			cancel()
			<-loop
		}

		c.handlersMu.Lock()
		c.handlers = make(map[int]StateHandler)
		c.handlersMu.Unlock()

		if stopErr := c.client.StopCall(callID); stopErr != nil {
			c.logger.WithError(stopErr).Warn("Stopping call on close failed")
		}
		err = c.client.Close()
	})
	return err
}

// State returns the current UI state.
func (c *Controller) State() UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers h for state changes and returns its unsubscribe
// func. Handlers run on the goroutine that caused the change and must not
// call Toggle.
func (c *Controller) Subscribe(h StateHandler) func() {
	c.handlersMu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	c.handlersMu.Unlock()

	return func() {
		c.handlersMu.Lock()
		delete(c.handlers, id)
		c.handlersMu.Unlock()
	}
}

// Toggle is the call button. From idle or error it registers a call and
// starts it, returning once the call client has accepted or rejected the
// credential; reaching active is left to the call_started event. From
// active it stops the call and returns to idle without waiting for the
// client. While calling it does nothing.
func (c *Controller) Toggle(ctx context.Context) UIState {
	c.mu.Lock()
	next, effect := c.applyLocked(Input{Kind: InputToggle})

	switch effect {
	case EffectStopCall:
		callID := c.callID
		c.attempt++
		c.tracking = false
		c.callID = ""
		c.notifyAndUnlock(next)
		if err := c.client.StopCall(callID); err != nil {
			c.logger.WithError(err).Warn("Stopping call failed")
		}
		return next
	case EffectFetchCredential:
		c.attempt++
		attempt := c.attempt
		c.notifyAndUnlock(next)
		return c.startCall(ctx, attempt)
	default:
		c.mu.Unlock()
		return next
	}
}

func (c *Controller) startCall(ctx context.Context, attempt uint64) UIState {
	cred, err := c.source.FetchCredential(ctx)

	c.mu.Lock()
	if attempt != c.attempt {
		state := c.state
		c.mu.Unlock()
		return state
	}
	if err != nil {
		c.logger.WithError(err).
			WithField("retryable", IsRetryableError(err)).
			WithField("critical", IsCriticalError(err)).
			Error("Failed to register call")
		next, _ := c.applyLocked(Input{Kind: InputCredentialFailed, Message: MessageOr(err, "")})
		c.notifyAndUnlock(next)
		return next
	}
	if cred.CallID == "" {
		cred.CallID = uuid.NewString()
	}
	c.tracking = true
	c.callID = cred.CallID
	c.mu.Unlock()

	log := c.logger.WithField("call_id", cred.CallID)
	if !cred.ExpiresAt.IsZero() {
		log = log.WithField("token_ttl", cred.TTL().String())
	}
	log.Info("Credential received, starting call")

	if err := c.client.StartCall(ctx, cred); err != nil {
		c.logger.WithError(err).Error("Failed to start call")
		c.mu.Lock()
		if attempt != c.attempt || !c.tracking {
			state := c.state
			c.mu.Unlock()
			return state
		}
		c.tracking = false
		c.callID = ""
		next, _ := c.applyLocked(Input{Kind: InputStartFailed, Message: MessageOr(err, "")})
		c.notifyAndUnlock(next)
		return next
	}

	return c.State()
}

// HandleEvent applies one call client event. Events for a call the
// controller is not tracking are dropped.
func (c *Controller) HandleEvent(ev CallEvent) {
	in, ok := InputFromEvent(ev)
	if !ok {
		return
	}

	c.mu.Lock()
	if !c.tracking || ev.CallID != c.callID {
		c.mu.Unlock()
		c.logger.WithField("event", string(ev.Type)).WithField("call_id", ev.CallID).Debug("Dropping event for untracked call")
		return
	}
	c.logger.LogCallEvent(ev)

	next, _ := c.applyLocked(in)
	stop := false
	switch in.Kind {
	case InputCallEnded:
		c.tracking = false
		c.callID = ""
	case InputCallError:
		c.tracking = false
		c.callID = ""
		stop = true
	}
	c.notifyAndUnlock(next)

	if stop {
		c.logger.LogError(NewRetellError(next.ErrorMessage, ErrCodeCallError).AddDetail("call_id", ev.CallID))
		if err := c.client.StopCall(ev.CallID); err != nil {
			c.logger.WithError(err).Debug("Releasing failed call")
		}
	}
}

// applyLocked runs Transition against the current state. c.mu must be held.
func (c *Controller) applyLocked(in Input) (UIState, Effect) {
	prev := c.state
	next, effect := Transition(prev, in)
	if next != prev {
		c.state = next
		c.metrics.transition(prev.Status, next.Status)
		c.logger.LogStateChange(prev, next)
	}
	return next, effect
}

// notifyAndUnlock releases c.mu and delivers state to subscribers.
// Deliveries are numbered under c.mu, so a subscriber never sees an older
// state after a newer one; a state overtaken before delivery is skipped.
func (c *Controller) notifyAndUnlock(state UIState) {
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq <= c.delivered {
		return
	}
	c.delivered = seq

	c.handlersMu.Lock()
	handlers := make([]StateHandler, 0, len(c.handlers))
	for id := 0; id < c.nextID; id++ {
		if h, ok := c.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	c.handlersMu.Unlock()

	for _, h := range handlers {
		h(state)
	}
}
