// Command covercraft is the interactive surface: it signs in, asks the
// background coordinator to extract the current page and generates cover
// letters from the result.
package main

import (
	"os"

	"github.com/LexiconIndonesia/covercraft-service/common/config"
	"github.com/LexiconIndonesia/covercraft-service/common/logger"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("covercraft failed")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "covercraft",
		Usage: "extract job postings and generate cover letters",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{"COVERCRAFT_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "zerolog level"},
		},
		Before: before,
		After: func(c *cli.Context) error {
			if e, ok := c.App.Metadata[envKey].(*env); ok {
				e.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			loginCommand,
			registerCommand,
			logoutCommand,
			statusCommand,
			extractCommand,
			extractURLCommand,
			extractContentCommand,
			generateCommand,
			resumesCommand,
			uploadCommand,
			historyCommand,
			billingCommand,
			settingsCommand,
			clearCommand,
			pingCommand,
		},
	}
}

func before(c *cli.Context) error {
	_ = godotenv.Load()

	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()
	if path := c.String("config"); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Setup(c.String("log-level"), true)

	switch c.Args().First() {
	case "", "help", "h":
		return nil
	}
	e, err := newEnv(cfg)
	if err != nil {
		return err
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[envKey] = e
	return nil
}
