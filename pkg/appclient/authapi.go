package appclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/oceanpad/atlasdata/pkg/transport"
)

// authAPI issues the raw App Services authentication requests. It performs
// no retries and holds no state; classification of failures belongs to the
// coordinator.
type authAPI struct {
	sender  transport.Sender
	baseURL string // e.g. https://services.cloud.mongodb.com/api/client/v2.0
	appID   string
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	DeviceID     string `json:"device_id"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	// RefreshToken is set only when the server rotates it.
	RefreshToken string `json:"refresh_token"`
}

type profileResponse struct {
	UserID     string         `json:"user_id"`
	Identities []Identity     `json:"identities"`
	Data       map[string]any `json:"data"`
}

func (a *authAPI) appURL(path string) string {
	return fmt.Sprintf("%s/app/%s%s", a.baseURL, a.appID, path)
}

// login posts the provider payload. deviceID, when known from a previous
// session, is echoed so the backend reuses the device record.
func (a *authAPI) login(ctx context.Context, provider string, payload map[string]any, deviceID string) (*loginResponse, error) {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["options"] = map[string]any{
		"device": map[string]any{"deviceId": deviceID},
	}

	var resp loginResponse
	err := a.do(ctx, "login", http.MethodPost, a.appURL("/auth/providers/"+provider+"/login"), "", body, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return nil, fmt.Errorf("appclient: login: response missing tokens")
	}
	return &resp, nil
}

// profile fetches the user's linked identities and custom data.
func (a *authAPI) profile(ctx context.Context, accessToken string) (*profileResponse, error) {
	var resp profileResponse
	err := a.do(ctx, "profile", http.MethodGet, a.appURL("/auth/profile"), accessToken, nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// refresh exchanges the refresh token for a new access token.
func (a *authAPI) refresh(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	var resp refreshResponse
	err := a.do(ctx, "refresh", http.MethodPost, a.appURL("/auth/session"), refreshToken, nil, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("appclient: refresh: response missing access token")
	}
	return &resp, nil
}

// deleteSession invalidates the session server-side.
func (a *authAPI) deleteSession(ctx context.Context, refreshToken string) error {
	return a.do(ctx, "logout", http.MethodDelete, a.appURL("/auth/session"), refreshToken, nil, nil)
}

// do sends one JSON request with an optional bearer token and decodes the
// response. Non-2xx statuses become *ServerError.
func (a *authAPI) do(ctx context.Context, op, method, url, bearer string, body, result any) error {
	req := &transport.Request{
		Method: method,
		URL:    url,
		Header: http.Header{
			"Content-Type": {"application/json"},
			"Accept":       {"application/json"},
		},
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("appclient: %s: failed to encode request: %w", op, err)
		}
		req.Body = data
	}

	resp, err := a.sender.Send(ctx, req)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return serverError(op, resp.StatusCode, resp.Body)
	}

	if result != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return fmt.Errorf("appclient: %s: failed to decode response: %w", op, err)
		}
	}
	return nil
}
