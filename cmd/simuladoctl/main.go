// Command simuladoctl drives the simulado engine from a terminal. It shares
// the persisted state with simuladod when both point at the same backend.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/genem/simulado/internal/app"
	"github.com/genem/simulado/internal/config"
	"github.com/genem/simulado/internal/logger"
)

type cli struct {
	cfg config.Config
	eng *app.Engine
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		os.Exit(1)
	}
}

// run executes one command line and releases the engine it opened.
func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	c := &cli{cfg: config.FromEnv()}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	err := root.ExecuteContext(ctx)
	if c.eng != nil {
		c.eng.Close()
	}
	return err
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "simuladoctl",
		Short:        "Generate, answer and review ENEM simulados",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger.Init(c.cfg.LogLevel)
			eng, err := app.Open(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			c.eng = eng
			return nil
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&c.cfg.StateDriver, "state", c.cfg.StateDriver, "state backend: sqlite|postgres|redis|memory")
	f.StringVar(&c.cfg.StateDSN, "dsn", c.cfg.StateDSN, "state DSN for sqlite/postgres")
	f.StringVar(&c.cfg.ExamAPIURL, "exam-api", c.cfg.ExamAPIURL, "exam service base URL")
	f.StringVar(&c.cfg.AuthAPIURL, "auth-api", c.cfg.AuthAPIURL, "user service base URL")
	f.BoolVar(&c.cfg.UseMockData, "mock", c.cfg.UseMockData, "generate placeholder questions offline")
	f.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "DEBUG|INFO|WARN|ERROR")

	root.AddCommand(
		c.statusCmd(),
		c.generateCmd(),
		c.answerCmd(),
		c.finishCmd(),
		c.restartCmd(),
		c.resumeCmd(),
		c.newCmd(),
		c.historyCmd(),
		c.topicsCmd(),
		c.chatCmd(),
		c.authCmd(),
	)
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := c.eng.Session.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "phase: %s\n", s.Phase)
			if s.ExamID == "" {
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exam: %s (offline=%v)\nanswered: %d/%d\n",
				s.ExamID, s.Offline, len(s.Answers), len(s.Questions))
			if s.Details != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "score: %d correct, %d wrong\n",
					s.Details.TotalCorrectAnswers, s.Details.TotalWrongAnswers)
			}
			return nil
		},
	}
}

func (c *cli) newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Discard the session and go back to the builder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.eng.Session.NewSimulado(cmd.Context())
		},
	}
}

func (c *cli) restartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Answer the same questions again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.eng.Session.Restart(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restarted %s with %d questions\n", s.ExamID, len(s.Questions))
			return nil
		},
	}
}

func (c *cli) resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Go back to the exam in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := c.eng.Session.Resume(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d answered, %ds left\n",
				s.ExamID, len(s.Answers), len(s.Questions), s.RemainingSeconds)
			return nil
		},
	}
}
