package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"escrowline/internal/app"
	"escrowline/internal/config"
	"escrowline/internal/db"
	"escrowline/internal/domain"
	"escrowline/internal/engine"
	"escrowline/internal/lifecycle"
	"escrowline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "esc",
	Short: "Escrowline CLI",
	Long: `Escrowline keeps a local, queryable mirror of escrow transactions held on a
remote ledger, and drives their lifecycle from the command line.
- Workspace: your .escrowline directory holding the mirror database.
- Transactions: basic (one recipient, release all at once) or milestone
  (allocations with contract signing and staged release payments).
- Actions: release, cancel, refund for the sender; approve, decline for a
  recipient. Every action is audited locally whether or not the ledger
  confirmed it.
- Sync: pull a fresh page from the ledger into the local mirror.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ESCROWLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting identity (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(txCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(actionCmd("release", "Release escrowed funds to the recipients", func(e *engine.Engine) actionFn { return e.Release }))
	rootCmd.AddCommand(actionCmd("cancel", "Cancel a pending escrow", func(e *engine.Engine) actionFn { return e.Cancel }))
	rootCmd.AddCommand(actionCmd("refund", "Refund escrowed funds to the sender", func(e *engine.Engine) actionFn { return e.Refund }))
	rootCmd.AddCommand(actionCmd("approve", "Approve an escrow as a recipient", func(e *engine.Engine) actionFn { return e.Approve }))
	rootCmd.AddCommand(actionCmd("decline", "Decline an escrow as a recipient", func(e *engine.Engine) actionFn { return e.Decline }))
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func txCmd() *cobra.Command {
	tx := &cobra.Command{Use: "tx", Short: "Inspect transactions"}
	tx.AddCommand(txListCmd())
	tx.AddCommand(txShowCmd())
	return tx
}

func txListCmd() *cobra.Command {
	var sync bool
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mirrored transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				actor := actorID(a)
				if sync {
					if _, err := a.Engine.Sync(ctx, actor, offset, limit); err != nil {
						return err
					}
				}
				items := a.Store.List()
				if viper.GetBool("json") {
					return printJSON(items)
				}
				rs := resolver(a)
				now := time.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Title", "Status", "Step", "Amount", "Role", "Created"})
				for _, t := range items {
					role := "recipient"
					if rs.IsSender(t, actor) {
						role = "sender"
					}
					tw.AppendRow(table.Row{
						t.ID, t.Kind, t.Title, t.Status, lifecycle.Step(t, now),
						formatAmount(t.Amount), role,
						time.Unix(0, t.CreatedAt).UTC().Format("2006-01-02 15:04"),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "pull a fresh page from the ledger first")
	cmd.Flags().IntVar(&offset, "offset", 0, "ledger page offset")
	cmd.Flags().IntVar(&limit, "limit", 50, "ledger page size")
	return cmd
}

func txShowCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one transaction with derived state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				actor := actorID(a)
				t, ok := a.Store.Get(id)
				if refresh || !ok {
					fresh, err := a.Engine.Fetch(ctx, actor, id)
					if err != nil {
						if !ok {
							return err
						}
					} else {
						t = fresh
					}
				}
				now := time.Now()
				rs := resolver(a)
				out := map[string]any{
					"transaction":     t,
					"step":            lifecycle.Step(t, now),
					"can_cancel":      lifecycle.CanCancel(t),
					"controls":        rs.ControlsFor(t, actor, now),
					"total_allocated": lifecycle.TotalAllocated(t),
					"recipients":      lifecycle.UniqueRecipientCount(t),
					"your_share":      lifecycle.UserShare(t, actor),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("%s  %s (%s)\n", t.ID, t.Title, t.Kind)
				fmt.Printf("Status: %s  Step: %d/6\n", t.Status, lifecycle.Step(t, now))
				fmt.Printf("Amount: %s  From: %s\n", formatAmount(t.Amount), t.From)
				c := rs.ControlsFor(t, actor, now)
				fmt.Printf("You: sender=%v acted=%v approve=%v decline=%v release=%v refund=%v cancel=%v\n",
					c.IsSender, c.HasActed, c.CanApprove, c.CanDecline, c.CanRelease, c.CanRefund, c.CanCancel)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-read from the ledger")
	return cmd
}

func syncCmd() *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull a page of transactions from the ledger into the mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.Sync(ctx, actorID(a), offset, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				fmt.Printf("synced %d transactions\n", len(items))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "ledger page offset")
	cmd.Flags().IntVar(&limit, "limit", 50, "ledger page size")
	return cmd
}

type actionFn func(ctx context.Context, actor, txID string) (engine.Outcome, error)

func actionCmd(name, short string, pick func(*engine.Engine) actionFn) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				out, err := pick(a.Engine)(ctx, actorID(a), id)
				if err != nil && out.Transaction.ID == "" {
					return err
				}
				if viper.GetBool("json") {
					res := map[string]any{"transaction": out.Transaction, "confirmed": out.Confirmed}
					if err != nil {
						res["error"] = err.Error()
					}
					return printJSON(res)
				}
				state := "confirmed"
				if !out.Confirmed {
					state = "presumed (ledger read-back did not confirm)"
				}
				fmt.Printf("%s %s: %s, status now %s\n", name, id, state, out.Transaction.Status)
				if err != nil {
					fmt.Println("warning:", err)
				}
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Action audit log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var txID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				events, err := a.Repo.LatestAuditEvents(ctx, n, txID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Action", "Transaction", "Actor", "Outcome", "Error"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.TS, e.Action, e.TransactionID, e.Actor, e.Outcome, e.Error})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&txID, "tx", "", "filter by transaction id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default escrowline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return printJSON(a.Config)
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return a.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				authCfg := server.AuthConfig{
					JWTSecret: a.Config.Auth.JWTSecret,
					APIKey:    a.Config.Auth.APIKey,
				}
				if authCfg.JWTSecret == "" && authCfg.APIKey == "" {
					return fmt.Errorf("auth.jwt_secret or auth.api_key is required to serve (or set ESCROWLINE_JWT_SECRET)")
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Repo:     a.Repo,
					BasePath: basePath,
					Auth:     authCfg,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				fmt.Printf("Serving Escrowline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Build(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func actorID(a *app.Context) string {
	if v := viper.GetString("actor"); v != "" {
		return v
	}
	return a.Config.Actor.Principal
}

func resolver(a *app.Context) lifecycle.Resolver {
	return lifecycle.Resolver{LegacyOwnerPrefix: a.Config.Compat.LegacyOwnerPrefix}
}

func formatAmount(units int64) string {
	return fmt.Sprintf("%.8g", float64(units)/float64(domain.UnitsPerCoin))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
