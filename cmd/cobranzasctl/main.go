// Command cobranzasctl inspects and maintains agent portfolios from the
// command line, against the same storage the server uses.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"wa-cobranzas/internal/cache"
	"wa-cobranzas/internal/config"
	"wa-cobranzas/internal/importer"
	"wa-cobranzas/internal/logging"
	"wa-cobranzas/internal/messaging"
	"wa-cobranzas/internal/portfolio"
	"wa-cobranzas/internal/repo"
	"wa-cobranzas/internal/session"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	agent  string
	cfg    *config.Config
	logger *slog.Logger
	store  repo.Store
}

func rootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "cobranzasctl",
		Short:         "Manage collection portfolios",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.store != nil {
				a.store.Close()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&a.agent, "agent", "", "Agent whose portfolio to use (required)")
	_ = cmd.MarkPersistentFlagRequired("agent")

	cmd.AddCommand(a.importCmd(), a.dueCmd(), a.historyCmd(), a.clearCmd())
	return cmd
}

func (a *app) init(ctx context.Context) error {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.logger = logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

	store, err := repo.Open(ctx, repo.Options{
		Backend:     cfg.StorageBackend,
		DatabaseURL: cfg.DatabaseURL,
		Schema:      cfg.DatabaseSchema,
		SQLitePath:  cfg.SQLitePath,
		Redis: cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		},
	}, a.logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	a.store = store
	return nil
}

// open loads the agent's profile into a fresh session.
func (a *app) open(ctx context.Context) (*session.Session, error) {
	s := session.New(session.Options{
		Store:               a.store,
		Channel:             messaging.LinkChannel{Endpoint: a.cfg.WhatsAppEndpoint},
		Agents:              a.cfg.Agents,
		CompanyName:         a.cfg.CompanyName,
		Endpoint:            a.cfg.WhatsAppEndpoint,
		DefaultSenderNumber: a.cfg.DefaultSenderNumber,
		Location:            a.cfg.Location,
		Logger:              a.logger,
	})
	if err := <-s.SelectAgent(ctx, a.agent); err != nil {
		return nil, fmt.Errorf("load agent %q: %w", a.agent, err)
	}
	return s, nil
}

func (a *app) importCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Append clients from a spreadsheet or delimited text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			if dryRun {
				rows, err := importer.ReadFile(args[0], f)
				if err != nil {
					return err
				}
				res := importer.Normalize(rows)
				printClients(cmd.OutOrStdout(), inputsAsClients(res.Inputs))
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d valid, %d rejected, %d without debt, %d skipped (dry run)\n",
					len(res.Inputs), res.Rejected, res.Dropped, res.Skipped)
				return nil
			}

			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			report, err := s.Import(cmd.Context(), args[0], f)
			printNotices(cmd.ErrOrStderr(), s.Notices())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d imported, %d rejected, %d without debt, %d skipped\n",
				report.Accepted, report.Rejected, report.Dropped, report.Skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and validate without saving")
	return cmd
}

func (a *app) dueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "List clients eligible for a reminder today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			due, err := s.Due()
			if err != nil {
				return err
			}
			printClients(cmd.OutOrStdout(), due)
			return nil
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List contacted clients, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			history, err := s.History()
			if err != nil {
				return err
			}
			printClients(cmd.OutOrStdout(), history)
			return nil
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every client in the agent's portfolio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.Clear(cmd.Context()); err != nil {
				return err
			}
			printNotices(cmd.OutOrStdout(), s.Notices())
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the deletion")
	return cmd
}

func printClients(w io.Writer, clients []portfolio.Client) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPHONE\tDEBT\tINSTALLMENT\tLAST MESSAGE\tMESSAGES")
	for _, c := range clients {
		last := "-"
		if c.LastMessage != nil {
			last = c.LastMessage.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%s\t%d\n", c.Name, c.Phone, c.Debt, c.InstallmentValue, last, c.MessageCount)
	}
	_ = tw.Flush()
}

func printNotices(w io.Writer, notices []session.Notice) {
	for _, n := range notices {
		fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Message)
	}
}

func inputsAsClients(inputs []portfolio.Input) []portfolio.Client {
	out := make([]portfolio.Client, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, portfolio.Client{
			Name:             in.Name,
			Phone:            in.Phone,
			Debt:             in.Debt,
			InstallmentValue: in.InstallmentValue,
		})
	}
	return out
}
