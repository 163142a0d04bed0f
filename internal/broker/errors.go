package broker

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// Sentinel results of token resolution. Use errors.Is to branch.
var (
	// ErrUnauthenticated means no access token is cached and no refresh
	// token exists anywhere: the user must log in.
	ErrUnauthenticated = errors.New("broker: not authenticated")
	// ErrExchangeFailed means the identity provider rejected, or could not
	// be reached for, a code or refresh-token exchange.
	ErrExchangeFailed = errors.New("broker: token exchange failed")
)

// Grant types sent to the token endpoint.
const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)

// ExchangeError describes a failed exchange. StatusCode is zero for
// transport failures that never produced an HTTP response.
type ExchangeError struct {
	GrantType   string
	StatusCode  int
	Code        string // OAuth2 "error" field, e.g. invalid_grant
	Description string
	Err         error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("broker: %s exchange failed: HTTP %d %s: %s", e.GrantType, e.StatusCode, e.Code, e.Description)
	case e.StatusCode != 0:
		return fmt.Sprintf("broker: %s exchange failed: HTTP %d", e.GrantType, e.StatusCode)
	default:
		return fmt.Sprintf("broker: %s exchange failed: %v", e.GrantType, e.Err)
	}
}

// Unwrap exposes both ErrExchangeFailed and the underlying cause.
func (e *ExchangeError) Unwrap() []error {
	return []error{ErrExchangeFailed, e.Err}
}

// newExchangeError classifies an error returned by the oauth2 package.
func newExchangeError(grantType string, err error) *ExchangeError {
	exErr := &ExchangeError{GrantType: grantType, Err: err}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		exErr.Code = re.ErrorCode
		exErr.Description = re.ErrorDescription

		if re.Response != nil {
			exErr.StatusCode = re.Response.StatusCode
		}
	}

	return exErr
}
