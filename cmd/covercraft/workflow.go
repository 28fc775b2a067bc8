package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/constants"
	"github.com/LexiconIndonesia/covercraft-service/common/messaging"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/LexiconIndonesia/covercraft-service/common/work"
	"github.com/LexiconIndonesia/covercraft-service/extraction"
	"github.com/LexiconIndonesia/covercraft-service/handoff"
	"github.com/LexiconIndonesia/covercraft-service/popup"
	"github.com/urfave/cli/v2"
)

var extractCommand = &cli.Command{
	Name:  "extract",
	Usage: "extract the job posting open in the active tab",
	Action: func(c *cli.Context) error {
		e := envFrom(c)
		balance, err := credits(c)
		if err != nil {
			return err
		}
		transport, err := e.transport()
		if err != nil {
			return err
		}

		coordinator, err := messaging.NewCoordinator(constants.PopupEndpoint, work.DefaultPoolConfig())
		if err != nil {
			return err
		}
		coordinator.Start(c.Context)
		defer coordinator.Stop()

		wf := e.workflow(transport)
		wf.Register(coordinator)
		stop, err := transport.Listen(coordinator)
		if err != nil {
			return err
		}
		defer func() { _ = stop() }()

		if err := wf.Mount(c.Context, balance); err != nil {
			return userError(err)
		}
		if err := wf.ExtractCurrentPage(c.Context); err != nil {
			return userError(err)
		}
		return printRecord(c, wf.State().Extracted)
	},
}

var extractURLCommand = &cli.Command{
	Name:      "extract-url",
	Usage:     "extract a job posting by URL on the server",
	ArgsUsage: "<url>",
	Action: func(c *cli.Context) error {
		raw := c.Args().First()
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return cli.Exit("A job posting URL is required", 1)
		}
		e := envFrom(c)
		job, err := extraction.NewService(e.client).FromURL(c.Context, raw)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		return store(c, handoff.Record{
			ExtractedContent: job,
			Domain:           u.Hostname(),
			PageType:         models.PageTypeJobPosting,
		})
	},
}

var extractContentCommand = &cli.Command{
	Name:      "extract-content",
	Usage:     "extract a job posting from a saved text or HTML file",
	ArgsUsage: "<file>",
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return cli.Exit("A file is required", 1)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		e := envFrom(c)
		job, err := extraction.NewService(e.client).FromContent(c.Context, string(raw))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		return store(c, handoff.Record{
			ExtractedContent: job,
			PageTitle:        filepath.Base(path),
			PageType:         models.PageTypeUnknown,
		})
	},
}

var generateCommand = &cli.Command{
	Name:  "generate",
	Usage: "generate a cover letter from the last extraction",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "resume", Usage: "resume ID, defaults to the first one"},
		&cli.StringFlag{Name: "tone"},
		&cli.StringFlag{Name: "length"},
		&cli.StringFlag{Name: "notes", Usage: "additional notes for the letter"},
	},
	Action: func(c *cli.Context) error {
		e := envFrom(c)
		balance, err := credits(c)
		if err != nil {
			return err
		}

		wf := popup.NewWorkflow(e.cache, e.api, nil,
			popup.WithGenerationCost(int(e.cfg.Workflow.GenerationCost)),
			popup.WithCreditListener(func(n int) {
				if err := e.session.SetCredits(c.Context, n); err != nil {
					fmt.Fprintf(c.App.ErrWriter, "could not store the new balance: %v\n", err)
				}
			}),
		)
		if err := wf.Mount(c.Context, balance); err != nil {
			return userError(err)
		}
		if c.IsSet("resume") {
			if err := wf.SelectResume(c.String("resume")); err != nil {
				return userError(err)
			}
		}

		if err := wf.Generate(c.Context, popup.GenerateOptions{
			Tone:            c.String("tone"),
			Length:          c.String("length"),
			AdditionalNotes: c.String("notes"),
		}); err != nil {
			return userError(err)
		}

		s := wf.State()
		fmt.Fprintln(c.App.Writer, s.CoverLetter)
		fmt.Fprintf(c.App.ErrWriter, "\n%d credits left\n", s.Credits)
		return nil
	},
}

var pingCommand = &cli.Command{
	Name:  "ping",
	Usage: "check whether a tab has a page listener attached",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "tab", Required: true},
		&cli.DurationFlag{Name: "timeout", Value: 2 * time.Second},
	},
	Action: func(c *cli.Context) error {
		transport, err := envFrom(c).transport()
		if err != nil {
			return err
		}
		msg, err := messaging.NewMessage(constants.PingMessage, nil)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()

		tab := c.Int("tab")
		if _, err := transport.Request(ctx, constants.ContentEndpoint(tab), msg); err != nil {
			return cli.Exit(fmt.Sprintf("tab %d: no listener (%v)", tab, err), 1)
		}
		fmt.Fprintf(c.App.Writer, "tab %d: listening\n", tab)
		return nil
	},
}

func store(c *cli.Context, record handoff.Record) error {
	record.ExtractedAt = time.Now().UTC().Format(time.RFC3339Nano)
	entry, err := envFrom(c).cache.Write(c.Context, record)
	if err != nil {
		return err
	}
	return printRecord(c, &entry.Record)
}

func printRecord(c *cli.Context, record *handoff.Record) error {
	if record == nil {
		return cli.Exit(popup.MsgExtractionFailed, 1)
	}
	return printJSON(c.App.Writer, record)
}
