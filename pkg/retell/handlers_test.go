package retell

import (
	"bytes"
	"strings"
	"testing"
)

func TestCreateStatusChangeHandler(t *testing.T) {
	var got []CallStatus
	h := CreateStatusChangeHandler(func(s CallStatus) { got = append(got, s) })

	for _, s := range []CallStatus{StatusIdle, StatusCalling, StatusCalling, StatusActive, StatusIdle} {
		h(UIState{Status: s})
	}

	want := []CallStatus{StatusCalling, StatusActive, StatusIdle}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestCreateErrorMessageHandler(t *testing.T) {
	var got []string
	h := CreateErrorMessageHandler(func(msg string) { got = append(got, msg) })

	h(UIState{Status: StatusError, ErrorMessage: "boom"})
	h(UIState{Status: StatusError, ErrorMessage: "boom"})
	h(UIState{Status: StatusCalling})
	h(UIState{Status: StatusError, ErrorMessage: "boom"})

	if len(got) != 2 {
		t.Fatalf("expected the message twice, got %v", got)
	}
}

func TestSequentialStateHandlersWithLogging(t *testing.T) {
	var logs bytes.Buffer
	logger := NewLogger(&LogConfig{Level: DebugLevel, Output: &logs})

	var views []View
	h := SequentialStateHandlers(
		CreateViewHandler("agent_1", func(v View) { views = append(views, v) }),
		nil,
		CreateStateLoggingHandler(logger),
	)
	h(UIState{Status: StatusError, ErrorMessage: "boom"})

	if len(views) != 1 || views[0].ErrorMessage != "boom" {
		t.Fatalf("unexpected views %+v", views)
	}
	if out := logs.String(); !strings.Contains(out, `"status":"error"`) || !strings.Contains(out, `"error_message":"boom"`) {
		t.Fatalf("state not logged: %s", out)
	}
}
