package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/genem/simulado/internal/examapi"
)

func (c *cli) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse past exams",
	}

	var (
		status      string
		skip, limit int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List exams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := examapi.ListOptions{Status: status}
			if cmd.Flags().Changed("skip") {
				opts.Skip = &skip
			}
			if cmd.Flags().Changed("limit") {
				opts.Limit = &limit
			}
			page, err := c.eng.Session.ListExams(cmd.Context(), opts)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tANSWERED\tCORRECT\tCREATED")
			for _, e := range page.Exams {
				fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%d\t%s\n",
					e.ID, e.Status, e.AnsweredQuestions, e.TotalQuestions, e.TotalCorrectAnswers, e.CreatedAt)
			}
			fmt.Fprintf(tw, "\n%d of %d exams\n", page.Pagination.Returned, page.Pagination.Total)
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&status, "status", "", "not_started|in_progress|finished")
	list.Flags().IntVar(&skip, "skip", 0, "")
	list.Flags().IntVar(&limit, "limit", 20, "")

	totals := &cobra.Command{
		Use:   "totals",
		Short: "Show totals across exams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := c.eng.Session.Totalizers(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, t)
		},
	}

	open := &cobra.Command{
		Use:   "open EXAM_ID",
		Short: "Review a finished exam or continue an unfinished one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.eng.Session.OpenHistoryExam(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %d/%d answered\n", s.ExamID, s.Phase, len(s.Answers), len(s.Questions))
			return nil
		},
	}

	replicate := &cobra.Command{
		Use:   "replicate EXAM_ID",
		Short: "Start a new exam with the same questions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.eng.Session.Replicate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "new exam %s with %d questions\n", s.ExamID, len(s.Questions))
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete EXAM_ID",
		Short: "Delete an exam",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.eng.Session.DeleteExam(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}

	cmd.AddCommand(list, totals, open, replicate, del)
	return cmd
}
