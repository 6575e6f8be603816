package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dmchat/internal/app/user"
	"dmchat/internal/client/api"
)

func buildRegisterCmd(opts *rootOptions) *cobra.Command {
	var in user.RegisterInput

	cmd := &cobra.Command{
		Use:     "register",
		Short:   "Create an account and print its identity token",
		Example: `  dmchat-client register --username alice --password secret1 --full-name "Alice Doe"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.client().Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), s)
			return nil
		},
	}

	cmd.Flags().StringVarP(&in.Username, "username", "u", "", "Username (3-30 letters, digits, '_' or '.')")
	cmd.Flags().StringVarP(&in.Password, "password", "p", "", "Password (at least 6 characters)")
	cmd.Flags().StringVar(&in.FullName, "full-name", "", "Display name")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("full-name")

	return cmd
}

func buildLoginCmd(opts *rootOptions) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:     "login",
		Short:   "Sign in and print the identity token",
		Example: `  eval "$(dmchat-client login -u alice -p secret1 | tail -1)"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// a stale token would make the server answer "already signed in"
			c := api.New(opts.server, "")

			s, err := c.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), s)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func buildSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find users by username or display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}

			c := opts.client()
			users, err := c.SearchUsers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			online, err := onlineSet(cmd.Context(), c)
			if err != nil {
				return err
			}

			printUsers(cmd.OutOrStdout(), users, online)
			return nil
		},
	}
}

func buildContactsCmd(opts *rootOptions) *cobra.Command {
	var onlineOnly bool

	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List your conversation partners, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}

			c := opts.client()
			users, err := c.Contacts(cmd.Context())
			if err != nil {
				return err
			}
			online, err := onlineSet(cmd.Context(), c)
			if err != nil {
				return err
			}

			if onlineOnly {
				filtered := users[:0]
				for _, u := range users {
					if _, ok := online[u.ID]; ok {
						filtered = append(filtered, u)
					}
				}
				users = filtered
			}

			printUsers(cmd.OutOrStdout(), users, online)
			return nil
		},
	}

	cmd.Flags().BoolVar(&onlineOnly, "online", false, "Show only contacts that are online")

	return cmd
}

func onlineSet(ctx context.Context, c *api.Client) (map[string]struct{}, error) {
	ids, err := c.Presence(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func printSession(w io.Writer, s api.Session) {
	fmt.Fprintf(w, "Signed in as %s (%s)\n", s.User.Username, s.User.FullName)
	fmt.Fprintf(w, "export DMCHAT_TOKEN=%s\n", s.Token)
}

func printUsers(w io.Writer, users []user.User, online map[string]struct{}) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tNAME\tSTATUS")
	for _, u := range users {
		status := "offline"
		if _, ok := online[u.ID]; ok {
			status = "online"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Username, strings.TrimSpace(u.FullName), status)
	}
	tw.Flush()
}
