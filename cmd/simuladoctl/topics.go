package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/genem/simulado/internal/topicfilter"
)

// selectTopics checks each FIELD[/AREA[/GENERAL[/SPECIFIC]]] node and
// returns the resolved topic ids.
func (c *cli) selectTopics(ctx context.Context, paths []string) ([]string, error) {
	agg := c.eng.Topics
	var ids []string
	for _, path := range paths {
		p := strings.Split(path, "/")
		var err error
		switch len(p) {
		case 1:
			ids, err = agg.ToggleField(ctx, p[0], true)
		case 2:
			ids, err = agg.ToggleArea(ctx, p[0], p[1], true)
		case 3:
			ids, err = agg.ToggleGeneralTopic(ctx, p[0], p[1], p[2], true)
		case 4:
			ids, err = agg.ToggleSpecificTopic(ctx, p[0], p[1], p[2], p[3], true)
		default:
			return nil, fmt.Errorf("bad topic selection %q", path)
		}
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func printNodes(cmd *cobra.Command, nodes []topicfilter.Node) {
	for _, n := range nodes {
		fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", n.Code, n.Name)
	}
}

func (c *cli) topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics [FIELD [AREA [GENERAL]]]",
		Short: "Walk the topic hierarchy",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			agg := c.eng.Topics
			switch len(args) {
			case 0:
				nodes, err := agg.LoadFields(ctx)
				if err != nil {
					return err
				}
				printNodes(cmd, nodes)
			case 1:
				nodes, err := agg.ExpandField(ctx, args[0])
				if err != nil {
					return err
				}
				printNodes(cmd, nodes)
			case 2:
				nodes, err := agg.ExpandArea(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				printNodes(cmd, nodes)
			case 3:
				names, err := agg.ExpandGeneralTopic(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
			}
			return nil
		},
	}

	resolve := &cobra.Command{
		Use:   "resolve NODE...",
		Short: "Print the topic ids a selection matches, e.g. 'resolve CN/FIS MT'",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := c.selectTopics(cmd.Context(), args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(ids, " "))
			return nil
		},
	}
	var codes bool
	distinct := &cobra.Command{
		Use:   "distinct [FIELD [AREA [GENERAL]]]",
		Short: "List the distinct values one level below the given codes",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			exams := c.eng.Exams
			var (
				values []string
				err    error
			)
			switch len(args) {
			case 0:
				if codes {
					values, err = exams.DistinctFieldCodes(ctx)
				} else {
					values, err = exams.DistinctFields(ctx)
				}
			case 1:
				if codes {
					values, err = exams.DistinctAreaCodes(ctx, args[0])
				} else {
					values, err = exams.DistinctAreas(ctx, args[0])
				}
			case 2:
				values, err = exams.DistinctGeneralTopics(ctx, args[0], args[1])
			case 3:
				values, err = exams.DistinctSpecificTopics(ctx, args[0], args[1], args[2])
			}
			if err != nil {
				return err
			}
			for _, v := range values {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
	distinct.Flags().BoolVar(&codes, "codes", false, "list field or area codes instead of names")

	cmd.AddCommand(resolve, distinct)
	return cmd
}
