package hrapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenLifetime applies when the token carries no readable expiry.
const DefaultTokenLifetime = 24 * time.Hour

// Login is a successful sign-in.
type Login struct {
	Profile   Profile
	Token     string
	ExpiresAt time.Time
}

type loginRequest struct {
	Email      string `json:"email"`
	MotDePasse string `json:"motDePasse"`
}

// Login authenticates against the API. The token is taken from the HttpOnly
// cookie the API sets, falling back to the body.
func (c *Client) Login(ctx context.Context, email, password string) (*Login, error) {
	req, err := c.newRequest(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   loginRequest{Email: email, MotDePasse: password},
	}, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("hrapi: decode login: %w", err)
	}
	token := profile.Token
	for _, cookie := range resp.Cookies() {
		if cookie.Name == TokenCookie && cookie.Value != "" {
			token = cookie.Value
		}
	}
	if token == "" {
		return nil, fmt.Errorf("hrapi: login: %w", ErrMissingToken)
	}
	profile.Token = ""
	return &Login{Profile: profile, Token: token, ExpiresAt: TokenExpiry(token, time.Now())}, nil
}

// TokenExpiry reads the exp claim without verifying the signature; the API
// remains the verifier. Unreadable tokens expire DefaultTokenLifetime after now.
func TokenExpiry(token string, now time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(DefaultTokenLifetime)
}

// Me returns the profile of the token's owner. A 401 here does not expire the session.
func (a *Caller) Me(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := a.get(ctx, mePath, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Logout clears the API-side cookie.
func (a *Caller) Logout(ctx context.Context) error {
	return a.do(ctx, request{method: http.MethodPost, path: "/auth/logout"}, nil)
}

// ServiceToken authenticates background calls made outside a user session.
type ServiceToken string

// APIToken implements Credentials.
func (t ServiceToken) APIToken() string { return string(t) }

// ExpireAPISession implements Credentials; a rejected service token is reported
// by the failing call.
func (ServiceToken) ExpireAPISession() {}
