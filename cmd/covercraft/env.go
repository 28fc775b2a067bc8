package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/LexiconIndonesia/covercraft-service/common"
	"github.com/LexiconIndonesia/covercraft-service/common/apiclient"
	"github.com/LexiconIndonesia/covercraft-service/common/config"
	"github.com/LexiconIndonesia/covercraft-service/common/kv"
	"github.com/LexiconIndonesia/covercraft-service/common/messaging"
	"github.com/LexiconIndonesia/covercraft-service/common/redis"
	"github.com/LexiconIndonesia/covercraft-service/content"
	"github.com/LexiconIndonesia/covercraft-service/handoff"
	"github.com/LexiconIndonesia/covercraft-service/popup"
	"github.com/urfave/cli/v2"
)

const envKey = "env"

var errNoBus = fmt.Errorf("nats transport: %w", common.ErrNotConfigured)

// env holds the collaborators of one CLI invocation.
type env struct {
	cfg      config.Config
	stores   *kv.Storage
	redis    *redis.RedisClient
	broker   *messaging.NatsBroker
	client   *apiclient.Client
	api      *apiclient.API
	session  *popup.Session
	settings *popup.Settings
	cache    *handoff.Cache
}

func newEnv(cfg config.Config) (*env, error) {
	e := &env{cfg: cfg}

	if cfg.Storage.LocalBackend == config.BackendRedis || cfg.Storage.SyncBackend == config.BackendRedis {
		client, err := redis.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		e.redis = client
	}

	stores, err := kv.Open(cfg, e.redis)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.stores = stores

	client, err := apiclient.New(apiclient.ConfigFrom(cfg), apiclient.WithTokenSource(popup.NewStoredToken(stores.Local)))
	if err != nil {
		e.Close()
		return nil, err
	}
	e.client = client
	e.api = apiclient.NewAPI(client)
	e.session = popup.NewSession(stores.Local, e.api)
	e.settings = popup.NewSettings(stores.Sync)
	e.cache = handoff.New(stores.Local)
	return e, nil
}

// transport connects to the bus on first use.
func (e *env) transport() (messaging.Transport, error) {
	if !e.cfg.Nats.Enabled {
		return nil, errNoBus
	}
	if e.broker == nil {
		broker, err := messaging.NewNatsBroker(e.cfg)
		if err != nil {
			return nil, err
		}
		e.broker = broker
	}
	return messaging.NewNatsTransport(e.broker.Conn(), e.cfg.Nats.SubjectPrefix), nil
}

func (e *env) workflow(transport messaging.Transport) *popup.Workflow {
	return popup.NewWorkflow(e.cache, e.api, transport,
		popup.WithGracePeriod(e.cfg.Workflow.GracePeriod()),
		popup.WithExtractionDeadline(e.cfg.Workflow.ExtractionDeadline()),
		popup.WithExtractTimeout(content.ExtractionTimeout(apiclient.ConfigFrom(e.cfg))),
		popup.WithGenerationCost(int(e.cfg.Workflow.GenerationCost)),
	)
}

func (e *env) Close() {
	if e.broker != nil {
		_ = e.broker.Close()
	}
	if e.stores != nil {
		_ = e.stores.Close()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
}

func envFrom(c *cli.Context) *env {
	return c.App.Metadata[envKey].(*env)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// userError turns workflow failures into their message with exit code 1.
func userError(err error) error {
	var f *popup.Failure
	if errors.As(err, &f) {
		return cli.Exit(f.Message, 1)
	}
	return err
}
