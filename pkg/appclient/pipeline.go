package appclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oceanpad/atlasdata/pkg/dataapi"
	"github.com/oceanpad/atlasdata/pkg/transport"
)

// requestPipeline wraps every Data API call with "attach access token, send,
// refresh once on auth failure and retry, surface the final result". It
// never retries for non-auth reasons and never triggers a login.
type requestPipeline struct {
	sender  transport.Sender
	coord   *authCoordinator
	store   *tokenStore
	dataURL string // e.g. https://data.mongodb-api.com/app/<id>/endpoint/data/v1
	logger  *slog.Logger
	metrics Metrics
}

// execute runs one operation. Every call resolves to exactly one of a
// response body or a classified error, and triggers at most one refresh.
func (p *requestPipeline) execute(ctx context.Context, op dataapi.Operation) ([]byte, error) {
	body, retried, err := p.run(ctx, op)
	if p.metrics != nil {
		p.metrics.CallFinished(op.Action, retried, err)
	}
	return body, err
}

func (p *requestPipeline) run(ctx context.Context, op dataapi.Operation) ([]byte, bool, error) {
	if err := p.checkState(); err != nil {
		return nil, false, err
	}

	reqBody, err := op.EncodeBody()
	if err != nil {
		return nil, false, err
	}

	sess, ok := p.store.get()
	if !ok {
		return nil, false, ErrNotAuthenticated
	}

	// Proactive refresh: a locally expired access token is guaranteed to be
	// rejected, so skip the doomed round trip. This counts as the one
	// refresh this call may trigger.
	refreshed := false
	if accessTokenExpired(sess.AccessToken) {
		if err := p.coord.Refresh(ctx); err != nil {
			return nil, false, err
		}
		refreshed = true
		if sess, ok = p.store.get(); !ok {
			return nil, false, ErrNotAuthenticated
		}
	}

	resp, err := p.send(ctx, op.Action, sess.AccessToken, reqBody)
	if err != nil {
		return nil, false, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if refreshed {
			// The freshly refreshed token was rejected too. Give up rather
			// than loop.
			return nil, false, fmt.Errorf("%w: %w", ErrAuthenticationExpired,
				serverError(op.Action, resp.StatusCode, resp.Body))
		}

		// Refresh failures surface as-is: unrecoverable ones already carry
		// ErrAuthenticationExpired, transient ones are the caller's call.
		if err := p.coord.Refresh(ctx); err != nil {
			return nil, false, err
		}
		sess, ok = p.store.get()
		if !ok {
			return nil, true, ErrNotAuthenticated
		}

		p.logger.Debug("retrying after token refresh", "action", op.Action)
		resp, err = p.send(ctx, op.Action, sess.AccessToken, reqBody)
		if err != nil {
			return nil, true, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, true, fmt.Errorf("%w: %w", ErrAuthenticationExpired,
				serverError(op.Action, resp.StatusCode, resp.Body))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, true, serverError(op.Action, resp.StatusCode, resp.Body)
		}
		return resp.Body, true, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, serverError(op.Action, resp.StatusCode, resp.Body)
	}
	return resp.Body, refreshed, nil
}

func (p *requestPipeline) checkState() error {
	state, expired := p.coord.status()
	switch state {
	case stateLoggedIn, stateRefreshing:
		return nil
	default:
		if expired {
			return ErrAuthenticationExpired
		}
		return ErrNotAuthenticated
	}
}

func (p *requestPipeline) send(ctx context.Context, action, accessToken string, body []byte) (*transport.Response, error) {
	return p.sender.Send(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    p.dataURL + "/action/" + action,
		Header: http.Header{
			"Content-Type":  {"application/json"},
			"Accept":        {"application/json"},
			"Authorization": {"Bearer " + accessToken},
		},
		Body: body,
	})
}

// accessTokenExpired reports whether the access token's exp claim has
// passed. The signature is not verified: expiry is the server's decision,
// this is only an optimization. Tokens that do not parse as JWTs are left
// for the server to judge.
func accessTokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().After(exp.Time)
}
