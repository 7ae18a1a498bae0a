package retell

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// CredentialSource hands out one credential per call attempt.
type CredentialSource interface {
	FetchCredential(ctx context.Context) (*Credential, error)
}

// TokenManager fetches call credentials from the token endpoint.
type TokenManager struct {
	endpoint   string
	headers    map[string]string
	httpClient *http.Client
}

// NewTokenManager returns a TokenManager for endpoint. A zero timeout
// leaves the fetch bounded only by the caller's context.
func NewTokenManager(endpoint string, headers map[string]string, timeout time.Duration) *TokenManager {
	return &TokenManager{
		endpoint:   endpoint,
		headers:    headers,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchCredential registers a new call and returns its credential. Errors
// carry the message the endpoint reported, or MsgRegisterFailed.
func (tm *TokenManager) FetchCredential(ctx context.Context) (*Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.endpoint, nil)
	if err != nil {
		return nil, NewConfigError(err.Error())
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range tm.headers {
		req.Header.Set(k, v)
	}

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, WrapError(err, ErrCodeTimeout)
		}
		return nil, WrapError(err, ErrCodeConnectionFailed)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(err, ErrCodeConnectionFailed)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := MsgRegisterFailed
		var data map[string]interface{}
		if json.Unmarshal(body, &data) == nil {
			if e := getString(data, "error"); e != "" {
				msg = e
			}
		}
		return nil, NewRetellError(msg, ErrCodeRegisterFailed).AddDetail("status_code", resp.StatusCode)
	}

	var call WebCall
	if err := json.Unmarshal(body, &call); err != nil {
		return nil, NewJSONError(err.Error())
	}
	if call.AccessToken == "" {
		return nil, NewRetellError(MsgNoAccessToken, ErrCodeRegisterFailed)
	}
	call.Raw = body

	return NewCredential(&call), nil
}
