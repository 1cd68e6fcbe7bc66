package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hemlock/internal/app"
	"hemlock/internal/auth"
	"hemlock/internal/credstore"
	"hemlock/internal/library"
	"hemlock/internal/mockosrf"
	"hemlock/internal/records"
)

var rootCmd = &cobra.Command{
	Use:   "hemlock",
	Short: "Hemlock catalog CLI",
	Long: `Hemlock is a multi-branded client for Evergreen library catalogs.
It talks to the OSRF JSON gateway of whichever library is active:
- Libraries: branded catalog endpoints listed in libraries.yml; pick one
  with --library or 'hemlock libraries use'.
- Accounts: credentials stored per library in the workspace; 'hemlock
  login' saves one, 'hemlock accounts' manages them.
- Checkouts/holds/history: fetched as bulk ID lists, then fleshed out
  with per-record detail calls; a record that fails to flesh is shown
  with its error instead of hiding its siblings.
- Sessions: each command logs in with the stored credential; expired
  sessions are re-authenticated once, transparently.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := credstore.EnsureWorkspace(workspace); err != nil {
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
	viper.SetEnvPrefix("HEMLOCK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("library", "l", "", "library id (overrides config default)")
	rootCmd.PersistentFlags().StringP("username", "u", "", "account username (overrides active account)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("library", rootCmd.PersistentFlags().Lookup("library"))
	_ = viper.BindPFlag("username", rootCmd.PersistentFlags().Lookup("username"))
}

func registerCommands() {
	rootCmd.AddCommand(librariesCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(checkoutsCmd())
	rootCmd.AddCommand(holdsCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(messagesCmd())
	rootCmd.AddCommand(bookbagsCmd())
	rootCmd.AddCommand(accountsCmd())
	rootCmd.AddCommand(simCmd())
}

func librariesCmd() *cobra.Command {
	lib := &cobra.Command{Use: "libraries", Short: "Manage library endpoints"}
	lib.AddCommand(librariesListCmd())
	lib.AddCommand(librariesUseCmd())
	lib.AddCommand(librariesInitCmd())
	return lib
}

func librariesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured libraries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.ResolveLibrary(viper.GetString("workspace"), viper.GetString("library"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Base URL", "Default"})
			for _, l := range cfg.Libraries {
				def := ""
				if l.ID == cfg.Default {
					def = "*"
				}
				tw.AppendRow(table.Row{l.ID, l.Name, l.BaseURL, def})
			}
			tw.Render()
			return nil
		},
	}
}

func librariesUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Set the default library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := library.Load(workspace)
			if err != nil {
				return err
			}
			if _, ok := cfg.Find(args[0]); !ok {
				return fmt.Errorf("unknown library %s", args[0])
			}
			cfg.Default = args[0]
			if err := cfg.Save(workspace); err != nil {
				return err
			}
			fmt.Println("default library:", args[0])
			return nil
		},
	}
}

func librariesInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default libraries.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := library.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(library.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	var username, password string
	var noSave bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the active library and store the credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				username = viper.GetString("username")
			}
			if password == "" {
				password = viper.GetString("password")
			}
			if username == "" || password == "" {
				return fmt.Errorf("--auth-user and --auth-password (or HEMLOCK_PASSWORD) required")
			}
			_, lib, err := app.ResolveLibrary(viper.GetString("workspace"), viper.GetString("library"))
			if err != nil {
				return err
			}
			env, err := app.Connect(cmd.Context(), lib, auth.Credential{Username: username, Password: password})
			if err != nil {
				return loginError(err)
			}
			if !noSave {
				if err := withStore(cmd.Context(), func(ctx context.Context, store credstore.Store) error {
					if err := store.Save(ctx, credstore.Credential{
						LibraryID: lib.ID, Username: username, Password: password,
					}); err != nil {
						return err
					}
					return store.TouchLogin(ctx, lib.ID, username)
				}); err != nil {
					return err
				}
			}
			fmt.Printf("logged in to %s as %s (user id %d)\n", lib.ID, env.Session.Username(), env.Session.UserID())
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "auth-user", "", "username")
	cmd.Flags().StringVar(&password, "auth-password", "", "password (prefer HEMLOCK_PASSWORD)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the credential")
	_ = viper.BindEnv("password", "HEMLOCK_PASSWORD")
	return cmd
}

func logoutCmd() *cobra.Command {
	var forget bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Deactivate the stored account for the active library",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, lib, err := app.ResolveLibrary(viper.GetString("workspace"), viper.GetString("library"))
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, store credstore.Store) error {
				if forget {
					username := viper.GetString("username")
					if username == "" {
						active, err := store.Active(ctx, lib.ID)
						if err != nil {
							return err
						}
						username = active.Username
					}
					return store.Remove(ctx, lib.ID, username)
				}
				return store.Deactivate(ctx, lib.ID)
			})
		},
	}
	cmd.Flags().BoolVar(&forget, "forget", false, "also remove the stored credential")
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				info := map[string]any{
					"library":  env.Library.ID,
					"username": env.Session.Username(),
					"user_id":  env.Session.UserID(),
					"state":    env.Session.State().String(),
				}
				return printJSONOrTable(info)
			})
		},
	}
}

type linkRow struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

type checkoutRow struct {
	ID      int       `json:"id"`
	Title   string    `json:"title"`
	Author  string    `json:"author"`
	Due     string    `json:"due_date,omitempty"`
	Renews  int       `json:"renewals_remaining"`
	Overdue bool      `json:"overdue"`
	Online  []linkRow `json:"online,omitempty"`
	Error   string    `json:"error,omitempty"`
}

func checkoutsCmd() *cobra.Command {
	var sortBy string
	var desc bool
	cmd := &cobra.Command{
		Use:   "checkouts",
		Short: "List checked-out items",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := records.ParseSortKey(sortBy)
			if !ok {
				return fmt.Errorf("unknown sort key %q", sortBy)
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				recs, err := env.Assembler.FetchCheckoutIDs(ctx)
				if err != nil {
					return err
				}
				env.Assembler.FleshCheckouts(ctx, recs)
				records.SortCheckouts(recs, key, !desc)

				caps := env.Library.Caps()
				showOnline := env.Library.Flags.ShowOnlineResources
				rows := make([]checkoutRow, 0, len(recs))
				for _, r := range recs {
					row := checkoutRow{
						ID: r.ID, Title: r.Title(), Author: r.Author(),
						Renews: r.RenewalsRemaining(), Overdue: r.Overdue,
					}
					if due, ok := r.DueDate(); ok {
						row.Due = due.Format("2006-01-02")
					}
					if showOnline && caps.IsOnlineResource(r.Bib()) {
						for _, l := range caps.OnlineLocations(r.Bib(), env.Library.OrgShortName) {
							row.Online = append(row.Online, linkRow{Href: l.Href, Text: l.Text})
						}
					}
					if err := r.Err(); err != nil {
						row.Error = err.Error()
					}
					rows = append(rows, row)
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Author", "Due", "Renews", "Note"})
				for _, row := range rows {
					note := ""
					if row.Overdue {
						note = "overdue"
					}
					if len(row.Online) > 0 {
						note = row.Online[0].Text
					}
					if row.Error != "" {
						note = "unavailable: " + row.Error
					}
					tw.AppendRow(table.Row{row.ID, row.Title, row.Author, row.Due, row.Renews, note})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort", "due", "sort key: due, title, author, pubdate")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	return cmd
}

type holdRow struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Status   string `json:"status,omitempty"`
	Position int    `json:"queue_position,omitempty"`
	Error    string `json:"error,omitempty"`
}

func holdsCmd() *cobra.Command {
	var sortBy string
	var desc bool
	cmd := &cobra.Command{
		Use:   "holds",
		Short: "List hold requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := records.ParseSortKey(sortBy)
			if !ok {
				return fmt.Errorf("unknown sort key %q", sortBy)
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				recs, err := env.Assembler.FetchHoldIDs(ctx)
				if err != nil {
					return err
				}
				env.Assembler.FleshHolds(ctx, recs)
				records.SortHolds(recs, key, !desc)

				showQueue := env.Library.Flags.ShowQueuePosition
				rows := make([]holdRow, 0, len(recs))
				for _, r := range recs {
					row := holdRow{ID: r.ID, Title: r.Title(), Author: r.Author(), Status: r.Status()}
					if showQueue {
						row.Position = r.QueuePosition()
					}
					if err := r.Err(); err != nil {
						row.Error = err.Error()
					}
					rows = append(rows, row)
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				header := table.Row{"ID", "Title", "Author", "Status"}
				if showQueue {
					header = append(header, "Position")
				}
				tw.AppendHeader(header)
				for _, row := range rows {
					status := row.Status
					if row.Error != "" {
						status = "unavailable: " + row.Error
					}
					r := table.Row{row.ID, row.Title, row.Author, status}
					if showQueue {
						r = append(r, row.Position)
					}
					tw.AppendRow(r)
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort", "title", "sort key: title, author, pubdate")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	return cmd
}

type historyRow struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Checkout string `json:"checked_out,omitempty"`
	Returned string `json:"returned,omitempty"`
	Error    string `json:"error,omitempty"`
}

func historyCmd() *cobra.Command {
	var sortBy string
	var desc bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past checkouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := records.ParseSortKey(sortBy)
			if !ok {
				return fmt.Errorf("unknown sort key %q", sortBy)
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				if !env.Library.Flags.EnableHistory {
					return fmt.Errorf("library %s does not offer checkout history", env.Library.ID)
				}
				recs, err := env.Assembler.FetchHistoryIDs(ctx)
				if err != nil {
					return err
				}
				env.Assembler.FleshHistory(ctx, recs)
				records.SortHistory(recs, key, !desc)

				rows := make([]historyRow, 0, len(recs))
				for _, r := range recs {
					row := historyRow{ID: r.ID, Title: r.Title(), Author: r.Author()}
					if t, ok := r.CheckoutDate(); ok {
						row.Checkout = t.Format("2006-01-02")
					}
					if t, ok := r.ReturnedDate(); ok {
						row.Returned = t.Format("2006-01-02")
					}
					if err := r.Err(); err != nil {
						row.Error = err.Error()
					}
					rows = append(rows, row)
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Author", "Checked Out", "Returned"})
				for _, row := range rows {
					tw.AppendRow(table.Row{row.ID, row.Title, row.Author, row.Checkout, row.Returned})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort", "due", "sort key: due (checkout date), title, author, pubdate")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	return cmd
}

func messagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages",
		Short: "List patron messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				msgs, err := env.Account.Messages(ctx)
				if err != nil {
					return err
				}
				type messageRow struct {
					ID      int    `json:"id"`
					Title   string `json:"title"`
					Message string `json:"message"`
				}
				rows := make([]messageRow, 0, len(msgs))
				for _, m := range msgs {
					id, _ := m.GetInt("id")
					rows = append(rows, messageRow{ID: id, Title: m.GetString("title"), Message: m.GetString("message")})
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Message"})
				for _, row := range rows {
					tw.AppendRow(table.Row{row.ID, row.Title, row.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func bookbagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bookbags",
		Short: "List the patron's book lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				names, err := env.Account.BookbagNames(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(names)
				}
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			})
		},
	}
}

func accountsCmd() *cobra.Command {
	acc := &cobra.Command{Use: "accounts", Short: "Manage stored accounts"}
	acc.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store credstore.Store) error {
				creds, err := store.Load(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(creds)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Library", "Username", "Active", "Last Login"})
				for _, c := range creds {
					active := ""
					if c.Active {
						active = "*"
					}
					tw.AppendRow(table.Row{c.LibraryID, c.Username, active, c.LastLogin})
				}
				tw.Render()
				return nil
			})
		},
	})
	acc.AddCommand(&cobra.Command{
		Use:   "use <username>",
		Short: "Switch the active account for the current library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, lib, err := app.ResolveLibrary(viper.GetString("workspace"), viper.GetString("library"))
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, store credstore.Store) error {
				return store.SetActive(ctx, lib.ID, args[0])
			})
		},
	})
	acc.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every stored account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store credstore.Store) error {
				return store.Clear(ctx)
			})
		},
	})
	return acc
}

func simCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run the gateway simulator with demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			sim := mockosrf.New()
			patron := mockosrf.Seed(sim)
			srv := &http.Server{Addr: addr, Handler: sim.Handler()}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving gateway simulator on http://%s%s (user %s / %s)\n",
				addr, "/osrf-gateway-v1", patron.Username, patron.Password)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	return cmd
}

// --- helpers ---

func withStore(ctx context.Context, fn func(context.Context, credstore.Store) error) error {
	workspace := viper.GetString("workspace")
	conn, err := credstore.Open(credstore.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, credstore.Store{DB: conn})
}

// withEnv resolves the active library and stored credential, logs in,
// and runs fn with the connected environment.
func withEnv(ctx context.Context, fn func(context.Context, *app.Env) error) error {
	workspace := viper.GetString("workspace")
	_, lib, err := app.ResolveLibrary(workspace, viper.GetString("library"))
	if err != nil {
		return err
	}
	return withStore(ctx, func(ctx context.Context, store credstore.Store) error {
		cred, err := app.ResolveCredential(ctx, store, lib.ID, viper.GetString("username"))
		if err != nil {
			return err
		}
		env, err := app.Connect(ctx, lib, auth.Credential{Username: cred.Username, Password: cred.Password})
		if err != nil {
			return loginError(err)
		}
		if err := store.TouchLogin(ctx, lib.ID, cred.Username); err != nil {
			return err
		}
		return fn(ctx, env)
	})
}

// loginError keeps the server's own rejection message intact; transport
// noise gets the generic treatment.
func loginError(err error) error {
	var lf *auth.LoginFailedError
	if errors.As(err, &lf) {
		return lf
	}
	return fmt.Errorf("login request failed: %w", err)
}

// printJSONOrTable renders a flat key/value map either as JSON or as a
// two-column table, per the --json flag.
func printJSONOrTable(v map[string]any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	for _, k := range keys {
		tw.AppendRow(table.Row{k, v[k]})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
