package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	serveradapter "github.com/hylla/waypoint/internal/adapters/server"
	servercommon "github.com/hylla/waypoint/internal/adapters/server/common"
	"github.com/hylla/waypoint/internal/app"
	"github.com/hylla/waypoint/internal/domain"
	"github.com/hylla/waypoint/internal/metrics"
)

// serveRunner is swapped in tests so serve does not bind a socket.
var serveRunner = serveradapter.Run

// newServeCommand starts the HTTP API and MCP server.
func newServeCommand(opts *globalOptions) *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API, MCP tools and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recorder := metrics.NewRecorder()
			s, err := opts.openSession(recorder)
			if err != nil {
				return err
			}
			defer s.Close()

			cfg := serveradapter.Config{
				HTTPBind:      s.cfg.Server.HTTPBind,
				APIEndpoint:   s.cfg.Server.APIEndpoint,
				MCPEndpoint:   s.cfg.Server.MCPEndpoint,
				ServerName:    opts.appName,
				ServerVersion: version,
			}
			if cmd.Flags().Changed("http") {
				cfg.HTTPBind = httpBind
			}
			if cmd.Flags().Changed("api-endpoint") {
				cfg.APIEndpoint = apiEndpoint
			}
			if cmd.Flags().Changed("mcp-endpoint") {
				cfg.MCPEndpoint = mcpEndpoint
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			s.logger.Info("command flow start", "command", "serve", "bind", cfg.HTTPBind)
			err = serveRunner(ctx, cfg, serveradapter.Dependencies{
				Service: s.planner,
				Metrics: recorder,
				Logger:  s.logger,
				Ready:   s.repo.Ping,
			})
			if err != nil {
				s.logger.Error("command flow failed", "command", "serve", "err", err)
				return fmt.Errorf("run serve command: %w", err)
			}
			s.logger.Info("command flow complete", "command", "serve")
			return nil
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "127.0.0.1:8080", "HTTP listen address")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "/api/v1", "HTTP API base endpoint")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "/mcp", "MCP streamable HTTP endpoint")
	return cmd
}

// newMilestoneCommand groups milestone subcommands.
func newMilestoneCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "milestone",
		Aliases: []string{"ms"},
		Short:   "Create, list, show, update status and delete milestones",
	}
	cmd.AddCommand(
		newMilestoneCreateCommand(opts),
		newMilestoneListCommand(opts),
		newMilestoneShowCommand(opts),
		newMilestoneStatusCommand(opts),
		newMilestoneDeleteCommand(opts),
	)
	return cmd
}

func newMilestoneCreateCommand(opts *globalOptions) *cobra.Command {
	var req servercommon.CreateMilestoneRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create one milestone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			req.TenantID = tenant
			return opts.withSession("milestone create", func(s *session) error {
				m, err := s.planner.CreateMilestone(cmd.Context(), req)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created milestone %s (%s, %s to %s)\n", m.ID, m.Name, m.StartDate, m.DueDate)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.Name, "name", "", "milestone name")
	flags.StringVar(&req.Description, "description", "", "milestone description")
	flags.StringVar(&req.StartDate, "start", "", "start date (YYYY-MM-DD)")
	flags.StringVar(&req.DueDate, "due", "", "due date (YYYY-MM-DD)")
	flags.StringVar(&req.Status, "status", "", "status: not_started, in_progress, completed, blocked, at_risk")
	flags.StringVar(&req.Priority, "priority", "", "priority: low, medium, high, critical")
	flags.StringVar(&req.Color, "color", "", "bar color (#RRGGBB)")
	flags.StringVar(&req.ProgressMode, "progress-mode", "", "progress mode: auto or manual")
	flags.IntVar(&req.ProgressPercentage, "progress", 0, "manual progress percentage")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func newMilestoneListCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List milestones with derived progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			return opts.withSession("milestone list", func(s *session) error {
				views, err := s.planner.ListMilestones(cmd.Context(), tenant)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), views)
				}
				renderMilestoneTable(cmd.OutOrStdout(), views)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newMilestoneShowCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <milestone-id>",
		Short: "Show one milestone and how its progress was derived",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			return opts.withSession("milestone show", func(s *session) error {
				view, err := s.planner.GetMilestone(cmd.Context(), tenant, args[0])
				if err != nil {
					return err
				}
				report, err := s.planner.MilestoneProgress(cmd.Context(), tenant, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"milestone": view,
						"progress":  report,
					})
				}
				renderMilestoneDetail(cmd.OutOrStdout(), view, report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newMilestoneStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <milestone-id> <status>",
		Short: "Set a milestone status (not_started|in_progress|completed|blocked|at_risk)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			return opts.withSession("milestone status", func(s *session) error {
				m, err := s.svc.SetMilestoneStatus(cmd.Context(), tenant, args[0], domain.MilestoneStatus(args[1]))
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "milestone %s is now %s\n", m.ID, m.Status)
				return nil
			})
		},
	}
}

func newMilestoneDeleteCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <milestone-id>",
		Aliases: []string{"rm"},
		Short:   "Delete one milestone with its dependencies and links",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			return opts.withSession("milestone delete", func(s *session) error {
				if err := s.planner.DeleteMilestone(cmd.Context(), tenant, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted milestone %s\n", args[0])
				return nil
			})
		},
	}
}

// newDependencyCommand groups dependency subcommands.
func newDependencyCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dep",
		Aliases: []string{"dependency"},
		Short:   "Add, check, list and remove milestone dependencies",
	}
	cmd.AddCommand(
		newDependencyAddCommand(opts),
		newDependencyCheckCommand(opts),
		newDependencyListCommand(opts),
		newDependencyRemoveCommand(opts),
	)
	return cmd
}

// dependencyFlags holds the shared type and lag flags.
type dependencyFlags struct {
	depType string
	lagDays int
}

func (f *dependencyFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.depType, "type", "", "finish_to_start, start_to_start, finish_to_finish or start_to_finish")
	cmd.Flags().IntVar(&f.lagDays, "lag", 0, "lag in days")
}

func (f *dependencyFlags) request(tenant string, args []string) servercommon.DependencyRequest {
	return servercommon.DependencyRequest{
		TenantID:             tenant,
		MilestoneID:          args[0],
		DependsOnMilestoneID: args[1],
		Type:                 f.depType,
		LagDays:              f.lagDays,
	}
}

func newDependencyAddCommand(opts *globalOptions) *cobra.Command {
	var flags dependencyFlags
	cmd := &cobra.Command{
		Use:   "add <milestone-id> <depends-on-id>",
		Short: "Validate and store a dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			return opts.withSession("dep add", func(s *session) error {
				dep, err := s.planner.AddDependency(cmd.Context(), flags.request(tenant, args))
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added dependency %s: %s depends on %s (%s, lag %d)\n",
					dep.ID, dep.MilestoneID, dep.DependsOnMilestoneID, dep.Type, dep.LagDays)
				return nil
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newDependencyCheckCommand(opts *globalOptions) *cobra.Command {
	var flags dependencyFlags
	cmd := &cobra.Command{
		Use:   "check <milestone-id> <depends-on-id>",
		Short: "Validate a dependency without storing it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			return opts.withSession("dep check", func(s *session) error {
				decision, err := s.planner.CheckDependency(cmd.Context(), flags.request(tenant, args))
				if err != nil {
					return err
				}
				renderDecision(cmd.OutOrStdout(), decision)
				return nil
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newDependencyListCommand(opts *globalOptions) *cobra.Command {
	var (
		milestoneID string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dependencies, optionally touching one milestone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			return opts.withSession("dep list", func(s *session) error {
				deps, err := s.planner.ListDependencies(cmd.Context(), tenant, milestoneID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), deps)
				}
				renderDependencyTable(cmd.OutOrStdout(), deps)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&milestoneID, "milestone", "", "only edges touching this milestone")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newDependencyRemoveCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <dependency-id>",
		Aliases: []string{"remove"},
		Short:   "Remove one dependency",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			return opts.withSession("dep rm", func(s *session) error {
				if err := s.planner.RemoveDependency(cmd.Context(), tenant, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed dependency %s\n", args[0])
				return nil
			})
		},
	}
}

// newTaskCommand groups task snapshot and link subcommands.
func newTaskCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Record external tasks and link them to milestones",
	}
	cmd.AddCommand(
		newTaskUpsertCommand(opts),
		newTaskLinkCommand(opts),
		newTaskUnlinkCommand(opts),
	)
	return cmd
}

func newTaskUpsertCommand(opts *globalOptions) *cobra.Command {
	var req servercommon.UpsertTaskRequest
	cmd := &cobra.Command{
		Use:   "upsert <task-id>",
		Short: "Create or update one task snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			req.TenantID = tenant
			req.TaskID = args[0]
			return opts.withSession("task upsert", func(s *session) error {
				task, err := s.planner.UpsertTask(cmd.Context(), req)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "task %s: %s [%s]\n", task.ID, task.Title, task.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "task title")
	cmd.Flags().StringVar(&req.Status, "status", "", "todo, in_progress, review or done")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTaskLinkCommand(opts *globalOptions) *cobra.Command {
	var weight int
	cmd := &cobra.Command{
		Use:   "link <milestone-id> <task-id>",
		Short: "Link one task to a milestone with a weight",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			return opts.withSession("task link", func(s *session) error {
				link, err := s.planner.LinkTask(cmd.Context(), servercommon.LinkTaskRequest{
					TenantID:    tenant,
					MilestoneID: args[0],
					TaskID:      args[1],
					Weight:      weight,
				})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "linked task %s to milestone %s (weight %d)\n", link.TaskID, link.MilestoneID, link.Weight)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&weight, "weight", 1, "task weight")
	return cmd
}

func newTaskUnlinkCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <milestone-id> <task-id>",
		Short: "Remove one task link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			return opts.withSession("task unlink", func(s *session) error {
				if err := s.planner.UnlinkTask(cmd.Context(), tenant, args[0], args[1]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "unlinked task %s from milestone %s\n", args[1], args[0])
				return nil
			})
		},
	}
}

// newRoadmapCommand renders the computed layout as coloured bars.
func newRoadmapCommand(opts *globalOptions) *cobra.Command {
	var (
		width  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "roadmap",
		Short: "Render the tenant roadmap",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			return opts.withSession("roadmap", func(s *session) error {
				roadmap, err := s.planner.Roadmap(cmd.Context(), tenant)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), roadmap)
				}
				renderRoadmap(cmd.OutOrStdout(), roadmap, width)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&width, "width", 80, "timeline width in columns")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// newRollupCommand prints the dependency health summary.
func newRollupCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Summarize dependency health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			return opts.withSession("rollup", func(s *session) error {
				rollup, err := s.planner.Rollup(cmd.Context(), tenant)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), rollup)
				}
				renderRollup(cmd.OutOrStdout(), rollup)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// newExportCommand writes a tenant snapshot as JSON or YAML.
func newExportCommand(opts *globalOptions) *cobra.Command {
	var (
		outPath string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the tenant as a JSON or YAML snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			path, err := opts.resolveSnapshotPath(outPath)
			if err != nil {
				return err
			}
			snapFormat, err := snapshotFormat(format, path)
			if err != nil {
				return err
			}
			return opts.withSession("export", func(s *session) error {
				return runExport(cmd.Context(), s.svc, tenant, path, snapFormat, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output file path ('-' for stdout, default: platform snapshot path)")
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default from --out extension, else json)")
	return cmd
}

// newImportCommand loads a snapshot into its tenant.
func newImportCommand(opts *globalOptions) *cobra.Command {
	var (
		inPath string
		format string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON or YAML snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := opts.resolveSnapshotPath(inPath)
			if err != nil {
				return err
			}
			snapFormat, err := snapshotFormat(format, path)
			if err != nil {
				return err
			}
			tenantOverride := ""
			if cmd.Flags().Changed("tenant") {
				if tenantOverride, err = opts.tenantID(); err != nil {
					return err
				}
			}
			return opts.withSession("import", func(s *session) error {
				result, err := runImport(cmd.Context(), s.svc, path, snapFormat, tenantOverride, cmd.InOrStdin())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(),
					"imported %d milestones, %d dependencies, %d tasks, %d task links, %d assignments (%d skipped)\n",
					result.Milestones, result.Dependencies, result.Tasks, result.TaskLinks, result.Assignments, result.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot file ('-' for stdin, default: platform snapshot path)")
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default from --in extension, else json)")
	return cmd
}

// snapshotFormat prefers the explicit flag and falls back to the file extension.
func snapshotFormat(flag, path string) (app.SnapshotFormat, error) {
	if strings.TrimSpace(flag) != "" {
		return app.ParseSnapshotFormat(flag)
	}
	if path == "-" {
		return app.SnapshotJSON, nil
	}
	return app.ParseSnapshotFormat(filepath.Ext(path))
}

// runExport encodes the tenant snapshot to stdout or a file.
func runExport(ctx context.Context, svc *app.Service, tenant, outPath string, format app.SnapshotFormat, stdout io.Writer) error {
	snap, err := svc.ExportSnapshot(ctx, tenant)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	if outPath == "-" {
		if err := app.EncodeSnapshot(stdout, snap, format); err != nil {
			return fmt.Errorf("write snapshot to stdout: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create export output dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := app.EncodeSnapshot(w, snap, format); err != nil {
		_ = f.Close()
		return fmt.Errorf("write export file: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write export file: %w", err)
	}
	return f.Close()
}

// runImport decodes one snapshot and imports it.
func runImport(ctx context.Context, svc *app.Service, inPath string, format app.SnapshotFormat, tenantOverride string, stdin io.Reader) (app.ImportResult, error) {
	var r io.Reader
	if inPath == "-" {
		r = stdin
	} else {
		f, err := os.Open(inPath)
		if err != nil {
			return app.ImportResult{}, fmt.Errorf("read import file: %w", err)
		}
		defer f.Close()
		r = f
	}
	snap, err := app.DecodeSnapshot(r, format)
	if err != nil {
		return app.ImportResult{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if tenantOverride != "" {
		snap.TenantID = tenantOverride
	}
	result, err := svc.ImportSnapshot(ctx, snap)
	if err != nil {
		return app.ImportResult{}, fmt.Errorf("import snapshot: %w", err)
	}
	return result, nil
}

// writeJSON prints one indented JSON document.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// formatPercent renders a progress value.
func formatPercent(p int) string {
	return strconv.Itoa(p) + "%"
}
