package retell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provisioner creates call sessions at the voice provider.
type Provisioner interface {
	CreateWebCall(ctx context.Context, req CreateWebCallRequest) (*WebCall, error)
}

// APIClient talks to the Retell REST API.
type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewAPIClient(baseURL, apiKey string) *APIClient {
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// NewAPIClientFromConfig builds a client from the loaded configuration.
func NewAPIClientFromConfig(cfg *Config) *APIClient {
	ac := NewAPIClient(cfg.APIBaseURL, cfg.APIKey)
	ac.SetTimeout(cfg.FetchTimeoutDuration())
	return ac
}

func (ac *APIClient) request(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, NewJSONError(err.Error())
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, ac.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, NewConfigError(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "retell-demo-go/1.0")
	if ac.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+ac.apiKey)
	}

	resp, err := ac.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, WrapError(err, ErrCodeTimeout)
		}
		return nil, WrapError(err, ErrCodeConnectionFailed)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(err, ErrCodeConnectionFailed)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewHTTPError(resp.StatusCode, providerErrorMessage(resp.StatusCode, respBody))
	}
	return respBody, nil
}

// CreateWebCall registers a browser call for req.AgentID. The returned
// WebCall keeps the undecoded body in Raw.
func (ac *APIClient) CreateWebCall(ctx context.Context, req CreateWebCallRequest) (*WebCall, error) {
	if req.AgentID == "" {
		return nil, NewConfigError("agent ID cannot be empty")
	}

	resp, err := ac.request(ctx, http.MethodPost, createWebCallPath, req)
	if err != nil {
		return nil, err
	}

	var call WebCall
	if err := json.Unmarshal(resp, &call); err != nil {
		return nil, NewJSONError(err.Error())
	}
	call.Raw = json.RawMessage(resp)
	return &call, nil
}

func (ac *APIClient) SetTimeout(timeout time.Duration) {
	ac.httpClient.Timeout = timeout
}

// providerErrorMessage digs the message out of an error body. The API is
// not consistent about the field name.
func providerErrorMessage(status int, body []byte) string {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err == nil {
		for _, key := range []string{"error_message", "message", "error"} {
			if msg := getString(data, key); msg != "" {
				return msg
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 512 && !strings.HasPrefix(text, "{") {
		return text
	}
	return http.StatusText(status)
}
