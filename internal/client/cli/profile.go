package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophusers/internal/client/session"
	"github.com/dmitrijs2005/gophusers/internal/models"
)

// Profile prints the cached user without contacting the server.
func (a *App) Profile(context.Context) error {
	cur, ok := a.state.Current().(session.Authenticated)
	if !ok {
		return session.ErrNotAuthenticated
	}
	a.printUser(cur.User)
	return nil
}

// Set changes one profile field. The value is the rest of the line; an
// explicit "" clears the field.
func (a *App) Set(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: set <address|phone|bio> <value>", errUsage)
	}
	value, err := a.valueOrPrompt(args[1:], "Enter "+args[0])
	if err != nil {
		return err
	}

	var upd models.ProfileUpdate
	switch args[0] {
	case "address":
		upd.Address = &value
	case "phone":
		upd.Phone = &value
	case "bio":
		upd.Bio = &value
	default:
		return fmt.Errorf("unknown field %q", args[0])
	}

	user, err := a.profiles.Update(ctx, upd)
	if err != nil {
		return err
	}
	a.printUser(user)
	return nil
}

func (a *App) Name(ctx context.Context, args []string) error {
	value, err := a.valueOrPrompt(args, "Enter name")
	if err != nil {
		return err
	}
	user, err := a.profiles.UpdateAccount(ctx, models.AccountUpdate{Name: &value})
	if err != nil {
		return err
	}
	a.printUser(user)
	return nil
}

func (a *App) Avatar(ctx context.Context, args []string) error {
	path, err := a.valueOrPrompt(args, "Enter image path")
	if err != nil {
		return err
	}
	user, err := a.profiles.UploadAvatar(ctx, path)
	if err != nil {
		return err
	}
	a.printf("Picture: %s\n", user.Picture)
	return nil
}

func (a *App) valueOrPrompt(args []string, prompt string) (string, error) {
	if len(args) == 0 {
		return getSimpleText(a.reader, prompt, a)
	}
	v := strings.Join(args, " ")
	if v == `""` {
		return "", nil
	}
	return v, nil
}
