// Package recordstore provides the REST client for the remote record store:
// client-credentials authentication, chunked filter queries with token-based
// pagination, and field metadata lookup.
//
// Authentication produces an explicit Session value that callers thread into
// the query client; there is no process-global token cache.
package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tigerroll/ripple/internal/exception"
	"github.com/tigerroll/ripple/internal/logger"
)

const moduleAuth = "store_auth"

// Session is the result of a successful authentication: the bearer token, the
// API endpoint assigned to this client, and the time the token was issued.
type Session struct {
	Token    string
	Endpoint string
	IssuedAt time.Time
}

// Authenticator exchanges client credentials for a Session at the store's
// token endpoint.
type Authenticator struct {
	authURL      string
	clientID     string
	clientSecret string
	client       *http.Client
}

// NewAuthenticator creates an Authenticator for the given token endpoint and credentials.
//
// Parameters:
//
//	authURL: The base URL of the token endpoint (without the /token path).
//	clientID: The client identifier.
//	clientSecret: The client secret.
//	timeout: The per-request HTTP timeout.
func NewAuthenticator(authURL, clientID, clientSecret string, timeout time.Duration) *Authenticator {
	return &Authenticator{
		authURL:      strings.TrimRight(authURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: timeout},
	}
}

// tokenResponse is the wire shape of a successful token grant.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Endpoint    string `json:"endpoint"`
}

// Authenticate performs the client-credentials grant and returns a Session.
// Any failure (transport, non-200 status, unusable response) is an
// authentication error: fatal and never retried.
func (a *Authenticator) Authenticate(ctx context.Context) (*Session, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, exception.NewBatchError(moduleAuth, "Failed to create token request", err, false, false)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, exception.NewBatchError(moduleAuth, "Token request failed", wrapSentinel(exception.ErrAuthentication, err), false, false)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		bodyString := strings.TrimSpace(string(bodyBytes))
		errMsg := fmt.Sprintf("Token endpoint rejected credentials: Status code %d, Body: %s", resp.StatusCode, bodyString)
		return nil, exception.NewBatchError(moduleAuth, errMsg, exception.ErrAuthentication, false, false)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, exception.NewBatchError(moduleAuth, "Failed to decode token response", wrapSentinel(exception.ErrAuthentication, err), false, false)
	}
	if tr.AccessToken == "" || tr.Endpoint == "" {
		return nil, exception.NewBatchError(moduleAuth, "Token response is missing access_token or endpoint", exception.ErrAuthentication, false, false)
	}

	logger.Debugf("Authenticated against '%s'; assigned endpoint '%s'.", a.authURL, tr.Endpoint)
	return &Session{
		Token:    tr.AccessToken,
		Endpoint: strings.TrimRight(tr.Endpoint, "/"),
		IssuedAt: time.Now(),
	}, nil
}
