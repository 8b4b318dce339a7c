package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophusers/internal/client/client"
	"github.com/dmitrijs2005/gophusers/internal/client/session"
)

// getSimpleText and getSecret are indirections used to facilitate testing.
var (
	getSimpleText = GetSimpleText
	getSecret     = GetSecret
)

var errUsage = errors.New("usage")

// Login exchanges an identity assertion for a session. The assertion may be
// given inline; otherwise it is read from the terminal without echo.
func (a *App) Login(ctx context.Context, args []string) error {
	var assertion string
	if len(args) > 0 {
		assertion = args[0]
	} else {
		var err error
		if assertion, err = getSecret("Identity assertion", a); err != nil {
			return err
		}
	}
	if assertion == "" {
		return errors.New("assertion must not be empty")
	}

	user, err := a.session.Login(ctx, assertion)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyAuthenticated) {
			a.printf("Already signed in, log out first\n")
			return nil
		}
		a.logger.Warn(ctx, "login failed", "error", err)
		return err
	}

	a.printf("Signed in as %s\n", user.Email)
	return nil
}

// Me refreshes the cached user from the server.
func (a *App) Me(ctx context.Context) error {
	user, err := a.session.Refresh(ctx)
	if err != nil {
		if client.IsTransportError(err) {
			a.printf("Server unavailable, showing cached data\n")
			return a.Profile(ctx)
		}
		return err
	}
	a.printUser(user)
	return nil
}

func (a *App) Status(context.Context) error {
	a.printf("%s\n", a.session.Status())
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	a.printf("Signed out\n")
	return nil
}
