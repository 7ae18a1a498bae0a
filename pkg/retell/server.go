package retell

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the token endpoint. It holds no per-request state, so one value
// serves all requests concurrently.
type Server struct {
	AgentID     string
	Provisioner Provisioner
	Logger      *Logger
	Metrics     *Metrics
}

// NewServer wires a Server from configuration.
func NewServer(cfg *Config, provisioner Provisioner, logger *Logger, metrics *Metrics) *Server {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	return &Server{
		AgentID:     cfg.AgentID,
		Provisioner: provisioner,
		Logger:      logger.WithComponent("token-endpoint"),
		Metrics:     metrics,
	}
}

func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(RegisterCallPath, s.RegisterCall)
	mux.HandleFunc(ConfigPath, s.ConfigInfo)
	mux.HandleFunc("/healthz", s.Health)
	mux.Handle("/metrics", promhttp.Handler())

	return s.instrument(s.recoverer(mux))
}

// NewHTTPServer returns an http.Server for the router.
func NewHTTPServer(addr string, s *Server) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(s),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// RegisterCall handles POST /api/register-call.
func (s *Server) RegisterCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
		return
	}

	log := s.logger().WithField("request_id", uuid.NewString())

	if s.AgentID == "" {
		s.Metrics.registerCall("config_error")
		log.Warn(MsgAgentIDNotSet)
		writeJSONError(w, http.StatusInternalServerError, MsgAgentIDNotSet)
		return
	}

	start := time.Now()
	call, err := s.Provisioner.CreateWebCall(r.Context(), CreateWebCallRequest{AgentID: s.AgentID})
	s.Metrics.observeProvision(time.Since(start).Seconds())
	if err == nil && call == nil {
		err = NewRetellError(MsgRegisterFailed, ErrCodeProvisionFailed)
	}
	if err != nil {
		s.Metrics.registerCall("provision_error")
		rErr := WrapError(err, ErrCodeProvisionFailed).AddDetail("agent_id", s.AgentID)
		log.WithError(err).LogError(rErr)
		writeJSONError(w, http.StatusInternalServerError, MessageOr(err, MsgRegisterFailed))
		return
	}

	s.Metrics.registerCall("success")
	log.WithField("call_id", call.CallID).Info("Call registered")

	if len(call.Raw) == 0 {
		writeJSON(w, http.StatusOK, call)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(call.Raw)
}

// ConfigInfo exposes the public part of the configuration for the page.
func (s *Server) ConfigInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONError(w, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":   agentIDLabel(s.AgentID),
		"configured": s.AgentID != "",
	})
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logger() *Logger {
	if s.Logger == nil {
		return GetGlobalLogger()
	}
	return s.Logger
}

// recoverer turns handler panics into the register-call error shape. A
// response already started is left as is.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger().WithField("panic", v).WithField("path", r.URL.Path).Error("Handler panic recovered")
				if !rec.wrote {
					writeJSONError(rec, http.StatusInternalServerError, MsgRegisterFailed)
				}
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wrote {
		return
	}
	r.status = status
	r.wrote = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	if s.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Metrics.HTTPRequestCounter.WithLabelValues(r.Method, pathLabel(r.URL.Path), strconv.Itoa(rec.status)).Inc()
	})
}

// pathLabel bounds label cardinality to the known routes.
func pathLabel(path string) string {
	switch path {
	case RegisterCallPath, ConfigPath, "/healthz", "/metrics":
		return path
	}
	return "other"
}

// Shutdown drains srv within timeout.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
