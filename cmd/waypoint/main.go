package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	servercommon "github.com/hylla/waypoint/internal/adapters/server/common"
	"github.com/hylla/waypoint/internal/adapters/storage/sqlite"
	"github.com/hylla/waypoint/internal/app"
	"github.com/hylla/waypoint/internal/config"
	"github.com/hylla/waypoint/internal/platform"
)

// version is stamped at build time.
var version = "dev"

// defaultTenant is used when neither --tenant nor WAYPOINT_TENANT is set.
const defaultTenant = "default"

// main runs the root command through fang.
func main() {
	ctx := context.Background()
	root := newRootCommand(os.Stdout, os.Stderr)
	if err := fang.Execute(ctx, root, fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// run executes one command line without fang styling. Tests drive the CLI through it.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SilenceUsage = true
	root.SilenceErrors = true
	return root.ExecuteContext(ctx)
}

// globalOptions holds the persistent root flags.
type globalOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	tenant     string

	stdout io.Writer
	stderr io.Writer
}

// newRootCommand builds the full command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	opts := &globalOptions{stdout: stdout, stderr: stderr}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("WAYPOINT_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultApp := "waypoint"
	if envApp := strings.TrimSpace(os.Getenv("WAYPOINT_APP_NAME")); envApp != "" {
		defaultApp = envApp
	}
	tenant := defaultTenant
	if envTenant := strings.TrimSpace(os.Getenv("WAYPOINT_TENANT")); envTenant != "" {
		tenant = envTenant
	}

	root := &cobra.Command{
		Use:           "waypoint",
		Short:         "Milestone dependency and scheduling engine",
		Long:          "waypoint tracks milestones, validates dependencies between them and lays them out on a roadmap.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	flags.StringVarP(&opts.tenant, "tenant", "t", tenant, "tenant id")

	root.AddCommand(
		newPathsCommand(opts),
		newServeCommand(opts),
		newMilestoneCommand(opts),
		newDependencyCommand(opts),
		newTaskCommand(opts),
		newRoadmapCommand(opts),
		newRollupCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
	)
	return root
}

// newPathsCommand prints the resolved runtime paths.
func newPathsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data and database paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := opts.paths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", opts.resolveConfigPath(paths))
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", opts.resolveDBPath(paths))
			_, _ = fmt.Fprintf(out, "snapshot: %s\n", paths.SnapshotPath)
			return nil
		},
	}
}

// paths resolves platform paths for the selected app name and mode.
func (o *globalOptions) paths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
		Home:    os.Getenv("WAYPOINT_HOME"),
	})
}

// resolveConfigPath applies flag, then env, then platform default.
func (o *globalOptions) resolveConfigPath(paths platform.Paths) string {
	if p := strings.TrimSpace(o.configPath); p != "" {
		return p
	}
	if envPath := strings.TrimSpace(os.Getenv("WAYPOINT_CONFIG")); envPath != "" {
		return envPath
	}
	return paths.ConfigPath
}

// dbOverride returns the flag or env database path, if any.
func (o *globalOptions) dbOverride() string {
	if p := strings.TrimSpace(o.dbPath); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv("WAYPOINT_DB_PATH"))
}

// resolveDBPath applies flag, then env, then platform default.
func (o *globalOptions) resolveDBPath(paths platform.Paths) string {
	if p := o.dbOverride(); p != "" {
		return p
	}
	return paths.DBPath
}

// resolveSnapshotPath returns the flag value or the platform snapshot path.
func (o *globalOptions) resolveSnapshotPath(flag string) (string, error) {
	if p := strings.TrimSpace(flag); p != "" {
		return p, nil
	}
	paths, err := o.paths()
	if err != nil {
		return "", err
	}
	return paths.SnapshotPath, nil
}

// tenantID returns the trimmed tenant flag value.
func (o *globalOptions) tenantID() (string, error) {
	tenant := strings.TrimSpace(o.tenant)
	if tenant == "" {
		return "", errors.New("--tenant is required")
	}
	return tenant, nil
}

// session bundles the runtime collaborators one command needs.
type session struct {
	cfg     config.Config
	paths   platform.Paths
	logger  *runtimeLogger
	repo    *sqlite.Repository
	svc     *app.Service
	planner *servercommon.AppServiceAdapter
}

// openSession loads config, configures logging and opens the repository.
func (o *globalOptions) openSession(observer app.Observer) (*session, error) {
	paths, err := o.paths()
	if err != nil {
		return nil, err
	}
	configPath := o.resolveConfigPath(paths)
	dbPath := o.resolveDBPath(paths)

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if override := o.dbOverride(); override != "" {
		cfg.Database.Path = override
	}

	logger, err := newRuntimeLogger(o.stderr, o.appName, o.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Debug("dev file logging enabled", "path", devPath)
	}

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Debug("sqlite repository ready", "db_path", cfg.Database.Path, "migrations", "ensured")

	svc := app.NewService(repo, uuid.NewString, nil, app.ServiceConfig{
		Layout:   cfg.LayoutOptions(),
		Observer: observer,
	})
	return &session{
		cfg:     cfg,
		paths:   paths,
		logger:  logger,
		repo:    repo,
		svc:     svc,
		planner: servercommon.NewAppServiceAdapter(svc),
	}, nil
}

// Close releases the repository and log sinks.
func (s *session) Close() {
	if s == nil {
		return
	}
	if err := s.repo.Close(); err != nil {
		s.logger.Warn("sqlite close failed", "db_path", s.cfg.Database.Path, "err", err)
	}
	if err := s.logger.Close(); err != nil {
		s.logger.Warn("close runtime log sink", "err", err)
	}
}

// withSession opens a session, runs fn and closes the session.
func (o *globalOptions) withSession(name string, fn func(*session) error) error {
	s, err := o.openSession(nil)
	if err != nil {
		return err
	}
	defer s.Close()
	s.logger.Debug("command flow start", "command", name)
	if err := fn(s); err != nil {
		s.logger.Debug("command flow failed", "command", name, "err", err)
		return err
	}
	return nil
}

// parseBoolEnv reads one boolean environment variable.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
