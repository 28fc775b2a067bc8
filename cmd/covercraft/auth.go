package main

import (
	"fmt"

	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/urfave/cli/v2"
)

var loginCommand = &cli.Command{
	Name:  "login",
	Usage: "sign in and store the session token",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "email", Required: true},
		&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"COVERCRAFT_PASSWORD"}},
	},
	Action: func(c *cli.Context) error {
		e := envFrom(c)
		user, err := e.session.Login(c.Context, models.LoginRequest{
			Email:    c.String("email"),
			Password: c.String("password"),
		})
		if err != nil {
			return userError(err)
		}
		fmt.Fprintf(c.App.Writer, "Signed in as %s (%d credits)\n", user.Email, user.Credits)
		return nil
	},
}

var registerCommand = &cli.Command{
	Name:  "register",
	Usage: "create an account and sign in",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "email", Required: true},
		&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"COVERCRAFT_PASSWORD"}},
		&cli.StringFlag{Name: "name", Required: true},
	},
	Action: func(c *cli.Context) error {
		e := envFrom(c)
		user, err := e.session.Register(c.Context, models.RegisterRequest{
			Email:    c.String("email"),
			Password: c.String("password"),
			Name:     c.String("name"),
		})
		if err != nil {
			return userError(err)
		}
		fmt.Fprintf(c.App.Writer, "Welcome %s, you have %d credits\n", user.Name, user.Credits)
		return nil
	},
}

var logoutCommand = &cli.Command{
	Name:  "logout",
	Usage: "forget the stored session",
	Action: func(c *cli.Context) error {
		if err := envFrom(c).session.Logout(c.Context); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "Signed out")
		return nil
	},
}

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "show the signed-in user and the cached extraction",
	Action: func(c *cli.Context) error {
		e := envFrom(c)
		user, err := e.session.Initialize(c.Context)
		if err != nil {
			return err
		}
		if u, ok := user.Get(); ok {
			fmt.Fprintf(c.App.Writer, "User:     %s (%s plan, %d credits)\n", u.Email, u.Plan, u.Credits)
		} else {
			fmt.Fprintln(c.App.Writer, "User:     signed out")
		}

		entry, err := e.cache.ReadFresh(c.Context)
		if err != nil {
			return err
		}
		if en, ok := entry.Get(); ok {
			fmt.Fprintf(c.App.Writer, "Job:      %s at %s (confidence %.2f)\n", en.Record.Title, en.Record.Company, en.Record.Confidence)
		} else {
			fmt.Fprintln(c.App.Writer, "Job:      nothing extracted in the last 10 minutes")
		}
		return nil
	},
}

// credits restores the session and returns the balance, failing when signed out.
func credits(c *cli.Context) (int, error) {
	user, err := envFrom(c).session.Initialize(c.Context)
	if err != nil {
		return 0, err
	}
	u, ok := user.Get()
	if !ok {
		return 0, cli.Exit("Not signed in. Run `covercraft login` first.", 1)
	}
	return u.Credits, nil
}
