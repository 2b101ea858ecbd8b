/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
)

// AuthRoundTripperError is returned in RoundTrip method of AuthRoundTripper
// when credentials cannot be obtained.
type AuthRoundTripperError struct {
	Inner error
}

func (e *AuthRoundTripperError) Error() string {
	return fmt.Sprintf("auth round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *AuthRoundTripperError) Unwrap() error {
	return e.Inner
}

// AuthProvider provides credentials for outgoing requests.
// GetAuthHeader returns the name of the HTTP header and its value,
// e.g. ("Authorization", "Bearer ...") or ("X-Api-Key", "...").
type AuthProvider interface {
	GetAuthHeader(ctx context.Context) (name, value string, err error)
}

// BearerAuthProvider is an AuthProvider that sets "Authorization: Bearer <token>" header.
type BearerAuthProvider struct {
	Token string
}

// GetAuthHeader implements AuthProvider.
func (p BearerAuthProvider) GetAuthHeader(_ context.Context) (string, string, error) {
	return "Authorization", "Bearer " + p.Token, nil
}

// HeaderAuthProvider is an AuthProvider that sets an API key in the arbitrary HTTP header.
type HeaderAuthProvider struct {
	HeaderName string
	Key        string
}

// GetAuthHeader implements AuthProvider.
func (p HeaderAuthProvider) GetAuthHeader(_ context.Context) (string, string, error) {
	return p.HeaderName, p.Key, nil
}

// AuthRoundTripper implements http.RoundTripper interface
// and sets the authorization HTTP header in all outgoing requests.
type AuthRoundTripper struct {
	Delegate     http.RoundTripper
	AuthProvider AuthProvider
}

// NewAuthRoundTripper creates a new AuthRoundTripper.
func NewAuthRoundTripper(delegate http.RoundTripper, authProvider AuthProvider) *AuthRoundTripper {
	return &AuthRoundTripper{delegate, authProvider}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *AuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	headerName, headerValue, err := rt.AuthProvider.GetAuthHeader(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close() // Per RoundTripper contract.
		}
		return nil, &AuthRoundTripperError{Inner: err}
	}
	if headerName == "" || req.Header.Get(headerName) != "" {
		return rt.Delegate.RoundTrip(req)
	}
	req = req.Clone(req.Context()) // Per RoundTripper contract.
	req.Header.Set(headerName, headerValue)
	return rt.Delegate.RoundTrip(req)
}
