package retell

import (
	"fmt"
	"strings"
)

// View is the call page derived from a UIState.
type View struct {
	Status        CallStatus
	StatusLabel   string
	ButtonAction  string
	ButtonEnabled bool
	ShowWave      bool
	Headline      string
	Hint          string
	ErrorMessage  string
	// Banner is non-empty when no agent is configured.
	Banner     string
	AgentLabel string
}

// RenderView derives the page for state. agentID may be empty.
func RenderView(state UIState, agentID string) View {
	v := View{
		Status:        state.Status,
		StatusLabel:   capitalize(string(state.Status)),
		ButtonAction:  "Start call",
		ButtonEnabled: state.Status != StatusCalling,
		Headline:      "Ready to start?",
		Hint:          "Press the call button to begin a voice conversation with your Retell agent.",
		ErrorMessage:  state.ErrorMessage,
		AgentLabel:    "Agent ID: " + agentIDLabel(agentID),
	}
	if state.Status == StatusActive {
		v.ButtonAction = "End call"
		v.ShowWave = true
		v.Headline = "Live Voice Session"
		v.Hint = "Speech recognition is active. Go ahead and say something!"
	}
	if agentID == "" {
		v.Banner = MsgMissingConfig
	}
	return v
}

func (v View) String() string {
	var sb strings.Builder
	if v.Banner != "" {
		sb.WriteString("! " + v.Banner + "\n")
	}
	fmt.Fprintf(&sb, "[%s] %s\n", v.StatusLabel, v.Headline)
	sb.WriteString(v.Hint + "\n")
	if v.ErrorMessage != "" {
		sb.WriteString("Error: " + v.ErrorMessage + "\n")
	}
	if v.ButtonEnabled {
		fmt.Fprintf(&sb, "Press Enter to %s.\n", strings.ToLower(v.ButtonAction))
	} else {
		sb.WriteString("Connecting...\n")
	}
	sb.WriteString(v.AgentLabel)
	return sb.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
