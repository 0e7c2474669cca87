// Package session keeps the shared browser session logged into the portal.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/slotclaim/internal/portal"
)

// LoginURL is the portal's authentication boundary. It redirects to the
// identity provider's form when no session exists.
const LoginURL = "https://tiss.tuwien.ac.at/admin/authentifizierung"

const (
	selAuthenticated = "#lehreLink"
	selLoginForm     = "#samlloginbutton"
	selUsername      = "#username"
	selPassword      = "#password"
	selSubmit        = "input#samlloginbutton, button#samlloginbutton"
)

// Steps reported by AuthFlowError.
const (
	StepNavigate = "navigate"
	StepDetect   = "detect"
	StepUsername = "username"
	StepPassword = "password"
	StepSubmit   = "submit"
)

// AuthFlowError is a failed login attempt. Step names where the flow broke.
type AuthFlowError struct {
	Step string
	Err  error
}

func (e *AuthFlowError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth flow failed at %s", e.Step)
	}
	return fmt.Sprintf("auth flow failed at %s: %v", e.Step, e.Err)
}

func (e *AuthFlowError) Unwrap() error { return e.Err }

var errMissingControl = errors.New("control not found")

type Credentials struct {
	Username string
	Password string
}

// Keeper logs the shared browser in, or confirms it already is.
type Keeper struct {
	Browser     portal.Browser
	Credentials Credentials
	LoginURL    string
	Logger      *slog.Logger
}

func (k *Keeper) loginURL() string {
	if k.LoginURL != "" {
		return k.LoginURL
	}
	return LoginURL
}

// Ensure makes sure the session is authenticated. Calling it on a session
// that is already logged in is a no-op.
func (k *Keeper) Ensure(ctx context.Context) error {
	page, err := k.Browser.NewPage(ctx)
	if err != nil {
		return &AuthFlowError{Step: StepNavigate, Err: err}
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			k.Logger.Warn("close login page", "err", cerr)
		}
	}()

	if err := page.Goto(ctx, k.loginURL()); err != nil {
		return &AuthFlowError{Step: StepNavigate, Err: err}
	}

	// The endpoint renders either the portal (already authenticated) or the
	// identity provider's form. The authenticated marker wins a tie.
	which, err := page.WaitForAny(ctx, selAuthenticated, selLoginForm)
	if err != nil {
		return &AuthFlowError{Step: StepDetect, Err: err}
	}
	if which == 0 {
		k.Logger.Info("already logged in")
		return nil
	}

	user, err := page.Query(ctx, selUsername)
	if err != nil || user == nil {
		return &AuthFlowError{Step: StepUsername, Err: orMissing(err)}
	}
	if err := user.Fill(ctx, k.Credentials.Username); err != nil {
		return &AuthFlowError{Step: StepUsername, Err: err}
	}

	pass, err := page.WaitFor(ctx, selPassword)
	if err != nil || pass == nil {
		return &AuthFlowError{Step: StepPassword, Err: orMissing(err)}
	}
	if err := pass.Fill(ctx, k.Credentials.Password); err != nil {
		return &AuthFlowError{Step: StepPassword, Err: err}
	}

	submit, err := page.WaitFor(ctx, selSubmit)
	if err != nil || submit == nil {
		return &AuthFlowError{Step: StepSubmit, Err: orMissing(err)}
	}
	if err := page.ActivateAndSettle(ctx, submit); err != nil {
		return &AuthFlowError{Step: StepSubmit, Err: err}
	}

	k.Logger.Info("logged in", "user", k.Credentials.Username)
	return nil
}

func orMissing(err error) error {
	if err != nil {
		return err
	}
	return errMissingControl
}
