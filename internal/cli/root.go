package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nhle/notefeed/internal/credential"
	"github.com/nhle/notefeed/internal/feed"
	"github.com/nhle/notefeed/internal/logging"
	"github.com/nhle/notefeed/internal/model"
	"github.com/nhle/notefeed/internal/source"
	"github.com/nhle/notefeed/internal/source/wpcom"
	"github.com/nhle/notefeed/internal/store"
	appsync "github.com/nhle/notefeed/internal/sync"
	"github.com/nhle/notefeed/internal/telemetry"
)

// flags shared by every command.
type flags struct {
	configFile string
	verbose    bool
}

// runtime is the wired feed stack for one command invocation.
type runtime struct {
	cfg      *model.AppConfig
	log      *logrus.Logger
	api      source.API
	stats    telemetry.Counter
	store    *feed.Store
	pipeline *feed.Pipeline
	cache    store.Store
	poller   *appsync.Poller

	closers []io.Closer
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i].Close()
	}
}

// New builds the notefeed command tree. Running it without a subcommand
// starts the terminal UI.
func New() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:           "notefeed",
		Short:         "Terminal client for your notification feed",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), f)
		},
	}

	cmd.PersistentFlags().StringVar(&f.configFile, "config", model.DefaultConfigPath(), "config file")
	cmd.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "make output more verbose")

	cmd.AddCommand(
		newTUICommand(f),
		newSyncCommand(f),
		newListCommand(f),
		newSeenCommand(f),
		newModerateCommand(f),
		newReplyCommand(f),
		newLoginCommand(f),
		newLogoutCommand(),
		newHistoryCommand(f),
	)
	return cmd
}

// setup loads the configuration and wires the API client, the feed and
// the snapshot cache. console selects whether logs also go to stderr.
func setup(f *flags, console bool) (*runtime, error) {
	cfg, err := model.LoadConfig(f.configFile)
	if err != nil {
		return nil, err
	}

	log, logCloser, err := logging.Setup(cfg.Log, logging.Options{Verbose: f.verbose, Console: console})
	if err != nil {
		return nil, err
	}
	r := &runtime{cfg: cfg, log: log, closers: []io.Closer{logCloser}}

	token := cfg.Token
	if token == "" {
		token, err = readToken()
		if err != nil {
			log.WithError(err).Warn("reading token from keyring")
		}
	}
	if token == "" {
		r.Close()
		return nil, fmt.Errorf("no API token: run `notefeed login` or set NOTEFEED_TOKEN")
	}

	r.api = wpcom.NewAdapter(cfg.API.BaseURL, token, time.Duration(cfg.API.TimeoutSec)*time.Second)

	r.stats = telemetry.Nop{}
	if cfg.Stats.Enabled {
		r.stats = telemetry.NewStatsCounter(cfg.Stats.Endpoint, cfg.Stats.Jetpack, log)
	}

	r.store = feed.NewStore(cfg.Feed.MaxNotes, log)
	r.pipeline = feed.NewPipeline(r.store, r.api, feed.Options{
		PageSize:      cfg.Feed.PageSize,
		BodyBatchSize: cfg.Feed.BodyBatchSize,
		FetchTimeout:  cfg.FetchTimeout(),
		Stats:         r.stats,
		Logger:        log,
	})

	if cfg.Cache.Path != "" {
		cache, err := store.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			log.WithError(err).Warn("opening snapshot cache; continuing without it")
		} else {
			r.cache = cache
			r.closers = append(r.closers, cache)
		}
	}

	r.poller = appsync.New(r.pipeline, r.cache, appsync.Options{
		Interval:   cfg.PollInterval(),
		LoadBodies: cfg.Poll.LoadBodies,
		Logger:     log,
	})

	return r, nil
}

// restore seeds the feed from the cache, logging rather than failing.
func (r *runtime) restore(ctx context.Context) {
	if err := r.poller.Restore(ctx); err != nil {
		r.log.WithError(err).Warn("restoring feed snapshot")
	}
}

func readToken() (string, error) {
	v, err := credential.Open()
	if err != nil {
		return "", err
	}
	return v.Token()
}
