package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/LexiconIndonesia/covercraft-service/popup"
	"github.com/urfave/cli/v2"
)

var resumesCommand = &cli.Command{
	Name:  "resumes",
	Usage: "list uploaded resumes",
	Action: func(c *cli.Context) error {
		e := envFrom(c)
		if _, err := credits(c); err != nil {
			return err
		}
		resumes, err := e.api.Resumes(c.Context)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILENAME\tUPLOADED")
		for _, r := range resumes {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.Filename, r.CreatedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

var uploadCommand = &cli.Command{
	Name:      "upload",
	Usage:     "upload a resume",
	ArgsUsage: "<file>",
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return cli.Exit("A resume file is required", 1)
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		e := envFrom(c)
		if _, err := credits(c); err != nil {
			return err
		}
		wf := popup.NewWorkflow(e.cache, e.api, nil)
		if err := wf.UploadResume(c.Context, filepath.Base(path), f); err != nil {
			return userError(err)
		}
		if r := wf.State().SelectedResume; r != nil {
			fmt.Fprintf(c.App.Writer, "Uploaded %s as %s\n", r.Filename, r.ID)
		}
		return nil
	},
}

var historyCommand = &cli.Command{
	Name:  "history",
	Usage: "list generated cover letters",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "json", Usage: "print the full letters as JSON"},
	},
	Action: func(c *cli.Context) error {
		e := envFrom(c)
		if _, err := credits(c); err != nil {
			return err
		}
		letters, err := e.api.CoverLetters(c.Context)
		if err != nil {
			return err
		}
		if c.Bool("json") {
			return printJSON(c.App.Writer, letters)
		}
		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tJOB\tCOMPANY\tCREDITS\tCREATED")
		for _, l := range letters {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", l.ID, l.JobTitle, l.Company, l.CreditsUsed, l.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var billingCommand = &cli.Command{
	Name:  "billing",
	Usage: "open a checkout session to buy credits",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "price", Required: true, Usage: "price ID of the plan"},
	},
	Action: func(c *cli.Context) error {
		e := envFrom(c)
		if _, err := credits(c); err != nil {
			return err
		}
		checkout, err := e.api.CreateBillingSession(c.Context, c.String("price"))
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, checkout)
		return nil
	},
}

var settingsCommand = &cli.Command{
	Name:  "settings",
	Usage: "show or change preferences",
	Subcommands: []*cli.Command{
		{
			Name: "show",
			Action: func(c *cli.Context) error {
				s, err := envFrom(c).settings.Load(c.Context)
				if err != nil {
					return err
				}
				return printJSON(c.App.Writer, s)
			},
		},
		{
			Name: "set",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "auto-detect"},
				&cli.BoolFlag{Name: "notifications"},
				&cli.StringFlag{Name: "theme", Usage: "light, dark or auto"},
				&cli.StringFlag{Name: "language"},
			},
			Action: func(c *cli.Context) error {
				e := envFrom(c)
				s, err := e.settings.Load(c.Context)
				if err != nil {
					return err
				}
				if c.IsSet("auto-detect") {
					s.AutoDetect = c.Bool("auto-detect")
				}
				if c.IsSet("notifications") {
					s.Notifications = c.Bool("notifications")
				}
				if c.IsSet("theme") {
					s.Theme = models.Theme(c.String("theme"))
				}
				if c.IsSet("language") {
					s.Language = c.String("language")
				}
				if err := e.settings.Save(c.Context, s); err != nil {
					return cli.Exit(err.Error(), 1)
				}
				return printJSON(c.App.Writer, s)
			},
		},
	},
}

var clearCommand = &cli.Command{
	Name:  "clear",
	Usage: "erase the session, the handoff cache and the preferences",
	Action: func(c *cli.Context) error {
		if err := envFrom(c).stores.ClearAll(c.Context); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "Local data cleared")
		return nil
	},
}
