package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	_ "go.uber.org/automaxprocs"

	"github.com/bluesky-social/hierarchy/models"
	"github.com/bluesky-social/hierarchy/nestedset"
	"github.com/bluesky-social/hierarchy/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting process", "err", err.Error())
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "treectl",
		Usage:   "inspect and edit nested-interval trees stored in a database",
		Version: versioninfo.Short(),
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db-url",
			Usage:   "database connection string",
			Value:   "sqlite://data/treectl/tree.sqlite",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-conn",
			Usage:   "limit on size of database connection pool",
			Value:   10,
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
		},
		&cli.StringFlag{
			Name:    "kind",
			Usage:   "which tree to operate on: issue (forest) or project (single tree)",
			Value:   "issue",
			EnvVars: []string{"TREE_KIND"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"TREE_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.DurationFlag{
			Name:    "lock-timeout",
			Usage:   "how long a mutation waits for its scope locks and for database row or file locks",
			Value:   nestedset.DefaultConfig[models.Issue]().LockTimeout,
			EnvVars: []string{"TREE_LOCK_TIMEOUT"},
		},
		&cli.BoolFlag{
			Name:    "tombstones",
			Usage:   "record a tombstone row for every deleted issue",
			EnvVars: []string{"TREE_TOMBSTONES"},
		},
		&cli.BoolFlag{
			Name: "enable-db-tracing",
		},
		&cli.StringFlag{
			Name:    "otel-exporter-otlp-endpoint",
			EnvVars: []string{"OTEL_EXPORTER_OTLP_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to serve prometheus metrics on while the command runs",
			EnvVars: []string{"TREE_METRICS_LISTEN"},
		},
	}
	app.Before = func(cctx *cli.Context) error {
		_, err := cliutil.SetupSlog(cliutil.LogOptions{LogLevel: cctx.String("log-level")})
		return err
	}
	app.Commands = []*cli.Command{
		cmdMigrate,
		cmdAdd,
		cmdMove,
		cmdDelete,
		cmdRebuild,
		cmdVerify,
		cmdShow,
		cmdSeed,
	}
	return app.Run(args)
}

type session struct {
	db       *gorm.DB
	kind     treeKind
	shutdown func()
}

func (s *session) Close() {
	s.shutdown()
}

// openSession connects to the database, turns on tracing and metrics as configured, and
// builds the tree selected by --kind.
func openSession(cctx *cli.Context) (*session, error) {
	logger := slog.Default()

	dburl := cctx.String("db-url")
	logger.Debug("configuring database", "url", dburl)
	db, err := cliutil.SetupDatabaseTimeout(dburl, cctx.Int("max-db-conn"), cctx.Duration("lock-timeout"))
	if err != nil {
		return nil, err
	}

	shutdown, err := setupOTEL(cctx)
	if err != nil {
		return nil, err
	}
	if cctx.Bool("enable-db-tracing") {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			shutdown()
			return nil, err
		}
	}

	if addr := cctx.String("metrics-listen"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics endpoint stopped", "err", err)
			}
		}()
	}

	kind, err := newKind(db, cctx)
	if err != nil {
		shutdown()
		return nil, err
	}
	return &session{db: db, kind: kind, shutdown: shutdown}, nil
}

func newKind(db *gorm.DB, cctx *cli.Context) (treeKind, error) {
	opts := models.TreeOptions{
		Locker:      nestedset.NewScopeLocker(),
		Tombstones:  cctx.Bool("tombstones"),
		LockTimeout: cctx.Duration("lock-timeout"),
	}

	switch cctx.String("kind") {
	case "issue":
		tree, err := models.NewIssueTree(db, opts)
		if err != nil {
			return nil, err
		}
		return &kindAdapter[models.Issue, *models.Issue]{
			tree:  tree,
			build: func(label string) *models.Issue { return &models.Issue{Subject: label} },
			label: func(iss *models.Issue) string { return iss.Subject },
		}, nil
	case "project":
		tree, err := models.NewProjectTree(db, opts)
		if err != nil {
			return nil, err
		}
		return &kindAdapter[models.Project, *models.Project]{
			tree:  tree,
			build: func(label string) *models.Project { return &models.Project{Name: label} },
			label: func(p *models.Project) string { return p.Name },
		}, nil
	default:
		return nil, fmt.Errorf("unknown tree kind: %#v", cctx.String("kind"))
	}
}
