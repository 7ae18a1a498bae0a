package retell

import (
	"encoding/json"
	"time"
)

// User-facing messages. The Token Endpoint and the UI both depend on the
// exact wording.
const (
	MsgAgentIDNotSet     = "NEXT_PUBLIC_RETELL_AGENT_ID is not set"
	MsgRegisterFailed    = "Failed to register call"
	MsgStartFailed       = "Failed to start call. Check your API key and Agent ID."
	MsgCallError         = "An error occurred during the call"
	MsgMissingConfig     = "Missing NEXT_PUBLIC_RETELL_AGENT_ID in environment variables"
	MsgMethodNotAllowed  = "Method not allowed"
	MsgNoAccessToken     = "no access token received"
	AgentIDNotSetLabel   = "Not Set"
	RegisterCallPath     = "/api/register-call"
	ConfigPath           = "/api/config"
	createWebCallPath    = "/v2/create-web-call"
	defaultAPIBaseURL    = "https://api.retellai.com"
	defaultListenAddr    = ":3000"
	defaultRegisterURL   = "http://localhost:3000" + RegisterCallPath
	defaultFetchTimeoutS = 30.0
)

// CallStatus enum
type CallStatus string

const (
	StatusIdle    CallStatus = "idle"
	StatusCalling CallStatus = "calling"
	StatusActive  CallStatus = "active"
	StatusError   CallStatus = "error"
)

// UIState is everything the call page renders from.
type UIState struct {
	Status       CallStatus
	ErrorMessage string
}

// EventType enum for real-time call client lifecycle events
type EventType string

const (
	EventCallStarted EventType = "call_started"
	EventCallEnded   EventType = "call_ended"
	EventError       EventType = "error"
)

// CallEvent is one lifecycle event produced by a CallClient.
type CallEvent struct {
	Type    EventType
	Message string
	// CallID identifies the call the event belongs to; it is the call id
	// of the Credential passed to StartCall.
	CallID    string
	Timestamp time.Time
}

// CreateWebCallRequest is the provisioning request body.
type CreateWebCallRequest struct {
	AgentID                   string         `json:"agent_id"`
	AgentVersion              *int           `json:"agent_version,omitempty"`
	Metadata                  map[string]any `json:"metadata,omitempty"`
	RetellLLMDynamicVariables map[string]any `json:"retell_llm_dynamic_variables,omitempty"`
}

// WebCall is the provisioning response. Raw holds the body exactly as the
// provider sent it.
type WebCall struct {
	AccessToken string `json:"access_token"`
	CallID      string `json:"call_id,omitempty"`
	AgentID     string `json:"agent_id,omitempty"`
	CallStatus  string `json:"call_status,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Credential is what a CallClient needs to join one call.
type Credential struct {
	AccessToken string
	CallID      string
	// ExpiresAt is zero when the token is opaque.
	ExpiresAt time.Time
}

// StateHandler receives controller state changes.
type StateHandler func(UIState)
