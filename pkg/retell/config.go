package retell

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is loaded once at startup and treated as read-only afterwards.
type Config struct {
	APIKey          string  `json:"-"`
	AgentID         string  `json:"agent_id"`
	APIBaseURL      string  `json:"api_base_url"`
	ListenAddr      string  `json:"listen_addr"`
	RegisterCallURL string  `json:"register_call_url"`
	CallWsEndpoint  string  `json:"call_ws_endpoint,omitempty"`
	FetchTimeout    float64 `json:"fetch_timeout"`
	DebugLevel      string  `json:"debug_level"`
	DebugWebsocket  bool    `json:"debug_websocket"`
}

// NewConfig returns the configuration from the process environment and,
// when present, a .env file in the working directory.
func NewConfig() *Config {
	return LoadConfig()
}

// LoadConfig is NewConfig with explicit .env files. Variables already set
// in the environment win over file values.
func LoadConfig(envFiles ...string) *Config {
	c := &Config{
		APIBaseURL:      defaultAPIBaseURL,
		ListenAddr:      defaultListenAddr,
		RegisterCallURL: defaultRegisterURL,
		FetchTimeout:    defaultFetchTimeoutS,
		DebugLevel:      "INFO",
	}

	_ = godotenv.Load(envFiles...)
	c.loadFromEnv()

	return c
}

func (c *Config) loadFromEnv() {
	c.APIKey = os.Getenv("RETELL_API_KEY")
	c.AgentID = os.Getenv("NEXT_PUBLIC_RETELL_AGENT_ID")

	if v := os.Getenv("RETELL_API_BASE_URL"); v != "" {
		c.APIBaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("RETELL_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("RETELL_REGISTER_CALL_URL"); v != "" {
		c.RegisterCallURL = v
	}
	c.CallWsEndpoint = os.Getenv("RETELL_CALL_WS_ENDPOINT")

	if v := os.Getenv("RETELL_FETCH_TIMEOUT"); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			c.FetchTimeout = val
		}
	}
	if level := os.Getenv("RETELL_DEBUG_LEVEL"); level != "" {
		c.DebugLevel = strings.ToUpper(level)
	}
	c.DebugWebsocket = os.Getenv("RETELL_DEBUG_WEBSOCKET") == "true"
}

// IsConfigured reports whether an agent identifier is set.
func (c *Config) IsConfigured() bool {
	return c.AgentID != ""
}

// AgentIDLabel is the agent identifier as displayed to users.
func (c *Config) AgentIDLabel() string {
	return agentIDLabel(c.AgentID)
}

func agentIDLabel(agentID string) string {
	if agentID == "" {
		return AgentIDNotSetLabel
	}
	return agentID
}

// FetchTimeoutDuration converts FetchTimeout; zero or negative disables it.
func (c *Config) FetchTimeoutDuration() time.Duration {
	if c.FetchTimeout <= 0 {
		return 0
	}
	return time.Duration(c.FetchTimeout * float64(time.Second))
}

// Validate returns list of issues
func (c *Config) Validate() []string {
	issues := []string{}

	if c.APIKey == "" {
		issues = append(issues, "RETELL_API_KEY environment variable not set")
	}
	if c.AgentID == "" {
		issues = append(issues, MsgAgentIDNotSet)
	}
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		issues = append(issues, fmt.Sprintf("Invalid API base URL: %s", c.APIBaseURL))
	}
	if !strings.HasPrefix(c.RegisterCallURL, "http://") && !strings.HasPrefix(c.RegisterCallURL, "https://") {
		issues = append(issues, fmt.Sprintf("Invalid register call URL: %s", c.RegisterCallURL))
	}
	if c.CallWsEndpoint != "" && !strings.HasPrefix(c.CallWsEndpoint, "ws") {
		issues = append(issues, "Invalid call WebSocket endpoint format")
	}

	validLevels := []string{"TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR"}
	found := false
	for _, level := range validLevels {
		if level == c.DebugLevel {
			found = true
			break
		}
	}
	if !found {
		issues = append(issues, fmt.Sprintf("Invalid debug level: %s", c.DebugLevel))
	}

	return issues
}

// PrintConfig writes a human readable summary with the API key masked.
func (c *Config) PrintConfig(w io.Writer) {
	fmt.Fprintln(w, "Retell Demo Configuration")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "API Key: %s\n", MaskSecret(c.APIKey))
	fmt.Fprintf(w, "Agent ID: %s\n", c.AgentIDLabel())
	fmt.Fprintf(w, "API Base URL: %s\n", c.APIBaseURL)
	fmt.Fprintf(w, "Listen Address: %s\n", c.ListenAddr)
	fmt.Fprintf(w, "Register Call URL: %s\n", c.RegisterCallURL)
	if c.CallWsEndpoint != "" {
		fmt.Fprintf(w, "Call WebSocket Endpoint: %s\n", c.CallWsEndpoint)
	} else {
		fmt.Fprintln(w, "Call WebSocket Endpoint: NOT SET")
	}
	fmt.Fprintf(w, "Fetch Timeout: %.1fs\n", c.FetchTimeout)
	fmt.Fprintf(w, "Debug Level: %s\n", c.DebugLevel)
	fmt.Fprintf(w, "Debug WebSocket: %t\n", c.DebugWebsocket)
}

// MaskSecret keeps only the edges of s.
func MaskSecret(s string) string {
	if s == "" {
		return "NOT SET"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
