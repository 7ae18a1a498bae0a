package retell

import "sync"

// Factory functions for common state handlers

// CreateStateLoggingHandler logs every delivered state.
func CreateStateLoggingHandler(logger *Logger) StateHandler {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	return func(state UIState) {
		l := logger.WithField("status", string(state.Status))
		if state.ErrorMessage != "" {
			l = l.WithField("error_message", state.ErrorMessage)
		}
		l.Debug("Call state")
	}
}

// CreateStatusChangeHandler calls callback only when the status differs
// from the last one it saw.
func CreateStatusChangeHandler(callback func(CallStatus)) StateHandler {
	var mu sync.Mutex
	last := StatusIdle
	return func(state UIState) {
		mu.Lock()
		changed := state.Status != last
		last = state.Status
		mu.Unlock()
		if changed && callback != nil {
			callback(state.Status)
		}
	}
}

// CreateErrorMessageHandler calls callback with each new non-empty error
// message.
func CreateErrorMessageHandler(callback func(string)) StateHandler {
	var mu sync.Mutex
	var last string
	return func(state UIState) {
		mu.Lock()
		msg := state.ErrorMessage
		changed := msg != "" && msg != last
		last = msg
		mu.Unlock()
		if changed && callback != nil {
			callback(msg)
		}
	}
}

// CreateViewHandler renders each state for agentID.
func CreateViewHandler(agentID string, render func(View)) StateHandler {
	return func(state UIState) {
		render(RenderView(state, agentID))
	}
}

// SequentialStateHandlers runs handlers in order.
func SequentialStateHandlers(handlers ...StateHandler) StateHandler {
	return func(state UIState) {
		for _, h := range handlers {
			if h != nil {
				h(state)
			}
		}
	}
}
