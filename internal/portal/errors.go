package portal

import (
	"errors"
	"fmt"
)

var (
	ErrLoginFormNotFound   = errors.New("login page has no form")
	ErrNoAuthorizationCode = errors.New("no authorization code returned")
	ErrMissingAccessToken  = errors.New("token response has no access_token")
	ErrNoRows              = errors.New("csv has no data rows")
	ErrMalformedCSV        = errors.New("malformed csv")
)

// AuthState is the step the login protocol had reached.
type AuthState int

const (
	StateUnauthenticated AuthState = iota
	StateFormFetched
	StateCodeObtained
	StateTokenObtained
)

func (s AuthState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateFormFetched:
		return "form-fetched"
	case StateCodeObtained:
		return "code-obtained"
	case StateTokenObtained:
		return "token-obtained"
	default:
		return fmt.Sprintf("AuthState(%d)", int(s))
	}
}

// AuthError is returned by Authenticate. State is the last step that completed.
type AuthError struct {
	State AuthState
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed in state %s: %v", e.State, e.Cause)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// TokenExchangeError reports a non-200 answer from the token endpoint.
type TokenExchangeError struct {
	Status int
	Body   string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed with status %d: %s", e.Status, e.Body)
}

// FetchError reports a failed data request. Status is zero for transport failures.
type FetchError struct {
	Status int
	Cause  error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("data endpoint returned status %d", e.Status)
	}
	return fmt.Sprintf("fetch data: %v", e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Unauthorized reports whether the endpoint rejected the bearer token.
func (e *FetchError) Unauthorized() bool {
	return e.Status == 401 || e.Status == 403
}
