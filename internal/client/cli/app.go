package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/gophusers/internal/client/session"
	"github.com/dmitrijs2005/gophusers/internal/logging"
	"github.com/dmitrijs2005/gophusers/internal/models"
)

// Session is the sign-in surface of session.Reconciler.
type Session interface {
	Status() session.Status
	Subscribe(fn func(session.Status))
	Login(ctx context.Context, assertion string) (models.User, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) (models.User, error)
}

// StateSource exposes the cached session state.
type StateSource interface {
	Current() session.State
}

// Profiles is the mutation surface of services.ProfileService.
type Profiles interface {
	Update(ctx context.Context, upd models.ProfileUpdate) (models.User, error)
	UpdateAccount(ctx context.Context, upd models.AccountUpdate) (models.User, error)
	UploadAvatar(ctx context.Context, path string) (models.User, error)
}

type App struct {
	session  Session
	state    StateSource
	profiles Profiles
	logger   logging.Logger

	reader *bufio.Reader

	mu  sync.Mutex
	out io.Writer
}

func NewApp(sess Session, state StateSource, profiles Profiles, in io.Reader, out io.Writer, logger logging.Logger) *App {
	return &App{
		session:  sess,
		state:    state,
		profiles: profiles,
		logger:   logger.With("module", "cli"),
		reader:   bufio.NewReader(in),
		out:      out,
	}
}

// Run prints status changes as they happen and blocks in the REPL until the
// input ends or the user exits.
func (a *App) Run(ctx context.Context) {
	a.session.Subscribe(func(s session.Status) {
		a.printf("[session %s]\n", s)
	})

	a.printf("Welcome to gophusers CLI (type 'help' for commands)\n")
	runREPL(ctx, a, a.prompt, a.reader)
}

func (a *App) isLoggedIn() bool {
	_, ok := a.state.Current().(session.Authenticated)
	return ok
}

func (a *App) prompt() string {
	if cur, ok := a.state.Current().(session.Authenticated); ok {
		return fmt.Sprintf("(%s)", cur.User.Email)
	}
	return fmt.Sprintf("(%s)", a.session.Status())
}

// printf serialises writes from the REPL and from status notifications.
func (a *App) printf(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// Write lets prompts share the App's output and its lock.
func (a *App) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.out.Write(p)
}

func (a *App) printUser(u models.User) {
	a.printf("id:      %s\nemail:   %s\nname:    %s\npicture: %s\naddress: %s\nphone:   %s\nbio:     %s\n",
		u.ID, u.Email, u.Name, u.Picture, u.Profile.Address, u.Profile.Phone, u.Profile.Bio)
}
