package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"planline/internal/app"
	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/migrate"
	"planline/internal/repo"
	"planline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Planline CLI",
	Long: `Planline turns a product requirements document into a working plan.
- Workspace: your .planline directory holding the database; settings live in planline.yml.
- Project: a PRD plus the epics, stories and tasks analyzed out of it.
- Lifecycle: six phases (concept, define, plan, develop, launch, sustain) with
  approval gates between them; each phase carries a service-task checklist.
- Dependencies: edges between epics, stories and tasks; 'pl path' walks the
  longest chain through them.
- Scoring: RICE and WSJF scores order the backlog; range estimates roll up
  through PERT.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("PLANLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (defaults to the workspace's only project)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(lifecycleCmd())
	rootCmd.AddCommand(phaseCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(pathCmd())
	rootCmd.AddCommand(decisionCmd())
	rootCmd.AddCommand(assumptionCmd())
	rootCmd.AddCommand(estimateCmd())
	rootCmd.AddCommand(backlogCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault(name)), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", cfgPath)
			}
			fmt.Printf("Workspace ready at %s (database %s)\n", workspace, db.Path(workspace))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "planline", "project name for the generated config")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var name, desc, prdFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			prd := ""
			if prdFile != "" {
				data, err := os.ReadFile(prdFile)
				if err != nil {
					return err
				}
				prd = string(data)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, name, desc, prd, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&prdFile, "prd", "", "path to the PRD markdown file")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var name, desc, prdFile, status string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				var upd repo.ProjectUpdate
				if cmd.Flags().Changed("name") {
					upd.Name = &name
				}
				if cmd.Flags().Changed("description") {
					upd.Description = &desc
				}
				if cmd.Flags().Changed("status") {
					upd.Status = &status
				}
				if prdFile != "" {
					data, err := os.ReadFile(prdFile)
					if err != nil {
						return err
					}
					prd := string(data)
					upd.PRDContent = &prd
				}
				res, err := e.UpdateProject(ctx, p.ID, upd, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&prdFile, "prd", "", "path to the PRD markdown file")
	cmd.Flags().StringVar(&status, "status", "", "status (draft, analyzing, ready, planned, error)")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				return e.DeleteProject(ctx, p.ID, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the PRD into epics, stories and tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				res, err := e.AnalyzeProject(ctx, p.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func lifecycleCmd() *cobra.Command {
	lc := &cobra.Command{
		Use:   "lifecycle",
		Short: "Manage the project lifecycle",
		Long:  "The lifecycle is six phases in sequence with approval gates between them. Each phase carries a checklist of service tasks; progress rolls up into a summary.",
	}
	lc.AddCommand(lifecycleInitCmd())
	lc.AddCommand(lifecycleAnalyzeCmd())
	lc.AddCommand(lifecycleSummaryCmd())
	lc.AddCommand(lifecycleDeleteCmd())
	return lc
}

func lifecycleInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the six lifecycle phases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				phases, err := e.InitLifecyclePhases(ctx, p.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printPhases(phases)
			})
		},
	}
	return cmd
}

func lifecycleAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Generate phase task checklists from the PRD",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				sum, err := e.AnalyzeLifecycle(ctx, p.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printSummary(sum)
			})
		},
	}
	return cmd
}

func lifecycleSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show lifecycle progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				sum, err := e.LifecycleSummary(ctx, p.ID)
				if err != nil {
					return err
				}
				return printSummary(sum)
			})
		},
	}
	return cmd
}

func lifecycleDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete all lifecycle phases and their tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				return e.DeleteLifecycle(ctx, p.ID, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func phaseCmd() *cobra.Command {
	ph := &cobra.Command{
		Use:   "phase",
		Short: "Manage lifecycle phases",
		Long:  "Phases move not_started -> in_progress -> pending_approval -> approved. A phase can only start once every earlier phase is approved or skipped, unless overridden with a reason.",
	}
	ph.AddCommand(phaseListCmd())
	ph.AddCommand(phaseActionCmd("start", "Start a phase", func(ctx context.Context, e engine.Engine, id int64, note string) (domain.LifecyclePhase, error) {
		return e.StartPhase(ctx, id, viper.GetString("actor-id"))
	}, ""))
	ph.AddCommand(phaseActionCmd("override", "Start a phase out of sequence", func(ctx context.Context, e engine.Engine, id int64, note string) (domain.LifecyclePhase, error) {
		return e.OverridePhase(ctx, id, note, viper.GetString("actor-id"))
	}, "reason"))
	ph.AddCommand(phaseActionCmd("submit", "Submit a phase for approval", func(ctx context.Context, e engine.Engine, id int64, note string) (domain.LifecyclePhase, error) {
		return e.SubmitForApproval(ctx, id, viper.GetString("actor-id"))
	}, ""))
	ph.AddCommand(phaseActionCmd("approve", "Approve a pending phase", func(ctx context.Context, e engine.Engine, id int64, note string) (domain.LifecyclePhase, error) {
		return e.ApprovePhase(ctx, id, viper.GetString("actor-id"), note)
	}, "notes"))
	ph.AddCommand(phaseActionCmd("reject", "Reject a pending phase", func(ctx context.Context, e engine.Engine, id int64, note string) (domain.LifecyclePhase, error) {
		return e.RejectApproval(ctx, id, note, viper.GetString("actor-id"))
	}, "notes"))
	ph.AddCommand(phaseActionCmd("skip", "Skip a phase", func(ctx context.Context, e engine.Engine, id int64, note string) (domain.LifecyclePhase, error) {
		return e.SkipPhase(ctx, id, note, viper.GetString("actor-id"))
	}, "reason"))
	return ph
}

func phaseListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List lifecycle phases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				phases, err := e.Repo.ListPhases(ctx, p.ID)
				if err != nil {
					return err
				}
				return printPhases(phases)
			})
		},
	}
	return cmd
}

func phaseActionCmd(verb, short string, run func(context.Context, engine.Engine, int64, string) (domain.LifecyclePhase, error), noteFlag string) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   verb + " <phase>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				phase, err := e.Repo.GetPhaseByKind(ctx, p.ID, kind)
				if err != nil {
					return err
				}
				res, err := run(ctx, e, phase.ID, note)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	if noteFlag != "" {
		cmd.Flags().StringVar(&note, noteFlag, "", noteFlag)
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage phase service tasks",
		Long:  "Service tasks are the checklist items inside a lifecycle phase, either generated from the PRD or added by hand. Completed and not-applicable tasks count toward phase progress.",
	}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskLinkCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskBulkStatusCmd())
	return task
}

func taskLinkCmd() *cobra.Command {
	var epicID, storyID int64
	cmd := &cobra.Command{
		Use:   "link <id>",
		Short: "Link a service task to backlog work",
		Long:  "Attaches a service task to the epic or story it tracks. Pass 0 to clear a link.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var epic, story *int64
			if cmd.Flags().Changed("epic") {
				epic = &epicID
			}
			if cmd.Flags().Changed("story") {
				story = &storyID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.LinkServiceTask(ctx, id, epic, story, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&epicID, "epic", 0, "epic id")
	cmd.Flags().Int64Var(&storyID, "story", 0, "story id")
	return cmd
}

func taskAddCmd() *cobra.Command {
	var opts engine.ServiceTaskCreate
	var days int
	cmd := &cobra.Command{
		Use:   "add <phase>",
		Short: "Add a service task to a phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			if cmd.Flags().Changed("days") {
				opts.DaysRequired = &days
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				phase, err := e.Repo.GetPhaseByKind(ctx, p.ID, kind)
				if err != nil {
					return err
				}
				t, err := e.CreateServiceTask(ctx, phase.ID, opts, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Definition, "definition", "", "what done looks like")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category")
	cmd.Flags().StringVar(&opts.Subcategory, "subcategory", "", "subcategory")
	cmd.Flags().IntVar(&days, "days", 0, "days required")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner")
	cmd.Flags().StringVar(&opts.Team, "team", "", "team")
	cmd.Flags().BoolVar(&opts.IsRequired, "required", false, "required for phase completion")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <phase>",
		Short: "List a phase's service tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				phase, err := e.Repo.GetPhaseByKind(ctx, p.ID, kind)
				if err != nil {
					return err
				}
				tasks, err := e.Repo.ListServiceTasks(ctx, phase.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Category", "Owner", "Source"})
				for _, t := range tasks {
					owner := ""
					if t.Owner != nil {
						owner = *t.Owner
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Category, owner, t.Source})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, definition, status, owner, team, notes, completionNotes string
	var days int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a service task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var upd repo.ServiceTaskUpdate
			if cmd.Flags().Changed("title") {
				upd.Title = &title
			}
			if cmd.Flags().Changed("definition") {
				upd.Definition = &definition
			}
			if cmd.Flags().Changed("status") {
				upd.Status = &status
			}
			if cmd.Flags().Changed("days") {
				upd.DaysRequired = &days
			}
			if cmd.Flags().Changed("owner") {
				upd.Owner = &owner
			}
			if cmd.Flags().Changed("team") {
				upd.Team = &team
			}
			if cmd.Flags().Changed("notes") {
				upd.Notes = &notes
			}
			if cmd.Flags().Changed("completion-notes") {
				upd.CompletionNotes = &completionNotes
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateServiceTask(ctx, id, upd, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&definition, "definition", "", "what done looks like")
	cmd.Flags().StringVar(&status, "status", "", "status (not_started, in_progress, blocked, completed, deferred, not_applicable)")
	cmd.Flags().IntVar(&days, "days", 0, "days required")
	cmd.Flags().StringVar(&owner, "owner", "", "owner")
	cmd.Flags().StringVar(&team, "team", "", "team")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&completionNotes, "completion-notes", "", "completion notes")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a service task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteServiceTask(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func taskBulkStatusCmd() *cobra.Command {
	var status string
	var ids []int64
	cmd := &cobra.Command{
		Use:   "bulk-status <phase>",
		Short: "Set the status of several tasks in a phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				phase, err := e.Repo.GetPhaseByKind(ctx, p.ID, kind)
				if err != nil {
					return err
				}
				updated, err := e.BulkUpdateTaskStatus(ctx, phase.ID, ids, status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"updated": updated})
			})
		},
	}
	cmd.Flags().Int64SliceVar(&ids, "id", nil, "task id (repeatable)")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func depCmd() *cobra.Command {
	dep := &cobra.Command{
		Use:   "dep",
		Short: "Manage dependency edges",
		Long:  "Dependencies are directed edges between epics, stories and tasks. 'pl dep infer' asks the collaborator to propose edges from item descriptions; inferred edges carry a confidence and reason.",
	}
	dep.AddCommand(depAddCmd())
	dep.AddCommand(depListCmd())
	dep.AddCommand(depUpdateCmd())
	dep.AddCommand(depDeleteCmd())
	dep.AddCommand(depInferCmd())
	return dep
}

func depAddCmd() *cobra.Command {
	var opts engine.DependencyCreate
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a dependency edge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				d, err := e.CreateDependency(ctx, p.ID, opts, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.SourceType, "source-type", "story", "source item type")
	cmd.Flags().Int64Var(&opts.SourceID, "source", 0, "source item id")
	cmd.Flags().StringVar(&opts.TargetType, "target-type", "story", "target item type")
	cmd.Flags().Int64Var(&opts.TargetID, "target", 0, "target item id")
	cmd.Flags().StringVar(&opts.DependencyType, "type", "depends_on", "edge type (depends_on, blocks, related)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func depListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dependency edges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				items, err := e.Repo.ListDependencies(ctx, p.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Source", "Type", "Target", "Status", "Inferred"})
				for _, d := range items {
					tw.AppendRow(table.Row{
						d.ID,
						fmt.Sprintf("%s:%d", d.SourceType, d.SourceID),
						d.DependencyType,
						fmt.Sprintf("%s:%d", d.TargetType, d.TargetID),
						d.Status,
						d.Inferred,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func depUpdateCmd() *cobra.Command {
	var depType, status, notes string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a dependency edge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var upd repo.DependencyUpdate
			if cmd.Flags().Changed("type") {
				upd.DependencyType = &depType
			}
			if cmd.Flags().Changed("status") {
				upd.Status = &status
			}
			if cmd.Flags().Changed("notes") {
				upd.Notes = &notes
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.UpdateDependency(ctx, id, upd, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&depType, "type", "", "edge type")
	cmd.Flags().StringVar(&status, "status", "", "status (pending, in_progress, resolved, blocked)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	return cmd
}

func depDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a dependency edge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteDependency(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func depInferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Infer dependency edges from item descriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				items, err := e.InferDependencies(ctx, p.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func pathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show the critical path through the dependency graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				path, err := e.CriticalPath(ctx, p.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(path)
				}
				if len(path) == 0 {
					fmt.Println("No dependency edges; nothing to walk.")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Item", "Hours", "Running total"})
				for _, step := range path {
					tw.AppendRow(table.Row{
						fmt.Sprintf("%s:%d", step.Item.Type, step.Item.ID),
						step.Duration,
						step.TotalDuration,
					})
				}
				tw.Render()
				fmt.Printf("Total: %.1f hours\n", path[len(path)-1].TotalDuration)
				return nil
			})
		},
	}
	return cmd
}

func decisionCmd() *cobra.Command {
	dec := &cobra.Command{
		Use:   "decision",
		Short: "Manage decisions",
		Long:  "Decisions capture the significant choices, who made them, and why. 'pl decision extract' pulls candidates out of the PRD along with assumptions.",
	}
	dec.AddCommand(decisionCreateCmd())
	dec.AddCommand(decisionListCmd())
	dec.AddCommand(decisionStatusCmd())
	dec.AddCommand(decisionExtractCmd())
	return dec
}

func decisionCreateCmd() *cobra.Command {
	var opts engine.DecisionCreate
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				d, err := e.CreateDecision(ctx, p.ID, opts, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Context, "context", "", "context")
	cmd.Flags().StringVar(&opts.Decision, "decision", "", "decision text")
	cmd.Flags().StringVar(&opts.Rationale, "rationale", "", "rationale")
	cmd.Flags().StringVar(&opts.Consequences, "consequences", "", "consequences")
	cmd.Flags().StringVar(&opts.Maker, "maker", "", "decision maker")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func decisionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				items, err := e.Repo.ListDecisions(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func decisionStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Change a decision's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.SetDecisionStatus(ctx, id, status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status (proposed, accepted, superseded, deprecated)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func decisionExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract decisions and assumptions from the PRD",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				decisions, assumptions, err := e.ExtractPlanning(ctx, p.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"decisions":   decisions,
					"assumptions": assumptions,
				})
			})
		},
	}
	return cmd
}

func assumptionCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "assumption",
		Short: "Manage assumptions",
	}
	a.AddCommand(assumptionCreateCmd())
	a.AddCommand(assumptionListCmd())
	a.AddCommand(assumptionValidateCmd())
	return a
}

func assumptionCreateCmd() *cobra.Command {
	var opts engine.AssumptionCreate
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record an assumption",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				a, err := e.CreateAssumption(ctx, p.ID, opts, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Assumption, "text", "", "assumption text")
	cmd.Flags().StringVar(&opts.Context, "context", "", "context")
	cmd.Flags().StringVar(&opts.ImpactIfWrong, "impact", "", "impact if wrong")
	cmd.Flags().StringVar(&opts.RiskLevel, "risk", "medium", "risk level (low, medium, high, critical)")
	cmd.Flags().StringVar(&opts.ValidationMethod, "method", "", "validation method")
	cmd.Flags().StringVar(&opts.ValidationOwner, "owner", "", "validation owner")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func assumptionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assumptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				items, err := e.Repo.ListAssumptions(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func assumptionValidateCmd() *cobra.Command {
	var status, result string
	cmd := &cobra.Command{
		Use:   "validate <id>",
		Short: "Mark an assumption validated or invalidated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ValidateAssumption(ctx, id, status, result, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "validated", "validated or invalidated")
	cmd.Flags().StringVar(&result, "result", "", "what the validation found")
	return cmd
}

func estimateCmd() *cobra.Command {
	est := &cobra.Command{
		Use:   "estimate",
		Short: "Score and estimate stories",
		Long:  "RICE is (reach x impact x confidence) / effort; WSJF is cost of delay / job size. Range estimates are p10/p50/p90 hours rolled up through PERT.",
	}
	est.AddCommand(estimateRICECmd())
	est.AddCommand(estimateWSJFCmd())
	est.AddCommand(estimateRangeCmd())
	est.AddCommand(estimateGenerateCmd())
	est.AddCommand(estimateShowCmd())
	return est
}

func estimateRICECmd() *cobra.Command {
	var reach, impact, confidence, effort float64
	cmd := &cobra.Command{
		Use:   "rice <story-id>",
		Short: "Set RICE scoring components",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				est, err := e.SetRICEScores(ctx, id, reach, impact, confidence, effort, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(est)
			})
		},
	}
	cmd.Flags().Float64Var(&reach, "reach", 0, "people reached per quarter")
	cmd.Flags().Float64Var(&impact, "impact", 0, "impact per person")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "confidence (0..1)")
	cmd.Flags().Float64Var(&effort, "effort", 0, "person-weeks of effort")
	return cmd
}

func estimateWSJFCmd() *cobra.Command {
	var bv, tc, rr, size float64
	cmd := &cobra.Command{
		Use:   "wsjf <story-id>",
		Short: "Set WSJF scoring components",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				est, err := e.SetWSJFScores(ctx, id, bv, tc, rr, size, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(est)
			})
		},
	}
	cmd.Flags().Float64Var(&bv, "business-value", 0, "business value")
	cmd.Flags().Float64Var(&tc, "time-criticality", 0, "time criticality")
	cmd.Flags().Float64Var(&rr, "risk-reduction", 0, "risk reduction / opportunity enablement")
	cmd.Flags().Float64Var(&size, "job-size", 0, "job size")
	return cmd
}

func estimateRangeCmd() *cobra.Command {
	var p10, p50, p90 float64
	cmd := &cobra.Command{
		Use:   "range <story-id>",
		Short: "Set a three-point range estimate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				est, err := e.SetRangeEstimate(ctx, id, p10, p50, p90, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(est)
			})
		},
	}
	cmd.Flags().Float64Var(&p10, "p10", 0, "optimistic hours")
	cmd.Flags().Float64Var(&p50, "p50", 0, "likely hours")
	cmd.Flags().Float64Var(&p90, "p90", 0, "pessimistic hours")
	return cmd
}

func estimateGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <story-id>",
		Short: "Generate an estimate for a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				est, err := e.GenerateEstimate(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(est)
			})
		},
	}
	return cmd
}

func estimateShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <story-id>",
		Short: "Show a story's estimate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				est, err := e.Repo.GetEstimate(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(est)
			})
		},
	}
	return cmd
}

func backlogCmd() *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "Stories ordered by priority score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				items, err := e.PrioritizedBacklog(ctx, p.ID, model)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Score"})
				for _, item := range items {
					score := "-"
					if item.Score != nil {
						score = strconv.FormatFloat(*item.Score, 'f', 2, 64)
					}
					tw.AppendRow(table.Row{item.Story.ID, item.Story.Title, item.Story.Priority, score})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "scoring model (rice or wsjf; defaults to config)")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				events, err := e.Repo.ListEvents(ctx, p.ID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := app.LoadConfig(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			provider, err := engine.ResolveProvider(cfg)
			if err != nil {
				return err
			}
			e.Provider = provider
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Planline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := app.LoadConfig(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	provider, err := engine.ResolveProvider(cfg)
	if err != nil {
		return err
	}
	e.Provider = provider
	return fn(ctx, e)
}

func withProject(ctx context.Context, fn func(context.Context, engine.Engine, domain.Project) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"))
		if err != nil {
			return err
		}
		return fn(ctx, e, p)
	})
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func printPhases(phases []domain.LifecyclePhase) error {
	if viper.GetBool("json") {
		return printJSON(phases)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Phase", "Status", "Tasks", "Progress", "Target end"})
	for _, p := range phases {
		target := ""
		if p.TargetEndDate != nil {
			target = *p.TargetEndDate
		}
		tw.AppendRow(table.Row{
			p.Phase,
			p.Status,
			fmt.Sprintf("%d/%d", p.CompletedTaskCount, p.TaskCount),
			fmt.Sprintf("%d%%", p.ProgressPercent()),
			target,
		})
	}
	tw.Render()
	return nil
}

func printSummary(sum domain.LifecycleSummary) error {
	if viper.GetBool("json") {
		return printJSON(sum)
	}
	current := "none"
	if sum.CurrentPhase != nil {
		current = *sum.CurrentPhase
	}
	fmt.Printf("Current phase: %s\n", current)
	fmt.Printf("Tasks: %d/%d (%.0f%%)\n", sum.CompletedTasks, sum.TotalTasks, sum.OverallProgress)
	if sum.EstimatedCompletionDate != nil {
		fmt.Printf("Estimated completion: %s\n", *sum.EstimatedCompletionDate)
	}
	return printPhases(sum.Phases)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
