package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/genem/simulado/internal/simulado"
)

func (c *cli) generateCmd() *cobra.Command {
	var (
		cfg     simulado.Config
		selects []string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a simulado and start answering it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(selects) > 0 && len(cfg.TopicIDs) == 0 {
				ids, err := c.selectTopics(cmd.Context(), selects)
				if err != nil {
					return err
				}
				cfg.TopicIDs = ids
			}
			s, err := c.eng.Session.Generate(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if s.Offline {
				fmt.Fprintln(out, "exam service unavailable, using offline questions")
			}
			fmt.Fprintf(out, "exam %s: %d questions, %d minutes\n", s.ExamID, len(s.Questions), cfg.TimeLimit)
			for _, q := range s.Questions {
				fmt.Fprintf(out, "  %s  %s (%s)\n", q.ID, q.Title, q.Discipline)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.Description, "description", "Simulado", "")
	f.IntVarP(&cfg.TotalQuestions, "questions", "n", 25, "number of questions (1-100)")
	f.IntVarP(&cfg.TimeLimit, "minutes", "m", 60, "time limit in minutes")
	f.StringSliceVar(&cfg.TopicIDs, "topic", nil, "question topic id, repeatable")
	f.IntSliceVar(&cfg.Years, "year", nil, "exam year, repeatable")
	f.StringArrayVar(&selects, "select", nil, "topic filter node FIELD[/AREA[/GENERAL[/SPECIFIC]]], repeatable")
	return cmd
}

func (c *cli) answerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer QUESTION_ID LETTER",
		Short: "Select an alternative, e.g. 'answer q12 C'",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := c.eng.Session.Snapshot()
			idx := -1
			for _, q := range s.Questions {
				if q.ID == args[0] {
					idx = q.IndexOf(strings.ToUpper(args[1]))
					break
				}
			}
			if idx < 0 {
				return fmt.Errorf("%w: %s %s", simulado.ErrInvalidAnswer, args[0], args[1])
			}
			if err := c.eng.Session.SelectAnswer(cmd.Context(), args[0], idx); err != nil {
				return err
			}
			// the send runs in the background; let it settle before exiting
			c.eng.Session.Wait()
			s = c.eng.Session.Snapshot()
			if s.PendingAnswers > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "saved locally, %d answers not yet synced\n", s.PendingAnswers)
			}
			return nil
		},
	}
}

func (c *cli) finishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finish",
		Short: "Finish the simulado and show the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := c.eng.Session.Finish(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d correct\n", d.TotalCorrectAnswers, d.TotalQuestions)
			for _, q := range d.Questions {
				mark := "x"
				if q.IsCorrect != nil && *q.IsCorrect {
					mark = "ok"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %-2s answered %-1s correct %s\n",
					q.QuestionID, mark, q.UserAnswer, q.CorrectAnswer)
			}
			return nil
		},
	}
}
