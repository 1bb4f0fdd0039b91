package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/genem/simulado/internal/auth"
)

func (c *cli) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat QUESTION_ID",
		Short: "Ask the assistant about a question; one message per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := c.eng.Chat.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer c.eng.Chat.Close(args[0])
			out := cmd.OutOrStdout()
			for _, m := range s.Messages {
				fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
			}
			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				line := strings.TrimSpace(sc.Text())
				if line == "" {
					continue
				}
				reply, err := c.eng.Chat.Send(ctx, args[0], line)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					continue
				}
				fmt.Fprintf(out, "%s: %s\n", reply.Role, reply.Content)
			}
			return sc.Err()
		},
	}
}

func (c *cli) authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the logged in user",
	}

	var name, password, confirm string
	register := &cobra.Command{
		Use:   "register EMAIL",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := c.eng.Auth.Register(cmd.Context(), auth.RegisterRequest{
				Email: args[0], Name: name, Password: password, ConfirmPassword: confirm,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, u)
		},
	}
	register.Flags().StringVar(&name, "name", "", "")
	register.Flags().StringVar(&password, "password", "", "")
	register.Flags().StringVar(&confirm, "confirm", "", "password again")

	var loginPassword string
	login := &cobra.Command{
		Use:   "login EMAIL",
		Short: "Log in and keep the access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := c.eng.Auth.Login(cmd.Context(), args[0], loginPassword)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s <%s>\n", u.Name, u.Email)
			return nil
		},
	}
	login.Flags().StringVar(&loginPassword, "password", "", "")

	logout := &cobra.Command{
		Use:  "logout",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.eng.Auth.Logout(cmd.Context())
		},
	}

	var upd auth.UpdateUserRequest
	me := &cobra.Command{
		Use:   "me",
		Short: "Show or update the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if upd != (auth.UpdateUserRequest{}) {
				u, err := c.eng.Auth.UpdateMe(cmd.Context(), upd)
				if err != nil {
					return err
				}
				return printJSON(cmd, u)
			}
			u, err := c.eng.Auth.Me(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, u)
		},
	}
	me.Flags().StringVar(&upd.Name, "set-name", "", "")
	me.Flags().StringVar(&upd.Email, "set-email", "", "")
	me.Flags().StringVar(&upd.Password, "set-password", "", "")

	cmd.AddCommand(register, login, logout, me)
	return cmd
}
