// Package main provides the dmchat command line client.
//
// # Basic Usage
//
//	dmchat-client login --username alice --password secret
//	export DMCHAT_TOKEN=...
//	dmchat-client search bob
//	dmchat-client chat bob
//
// # Environment Variables
//
//   - DMCHAT_SERVER: server base URL (default: http://localhost:8080)
//   - DMCHAT_TOKEN: identity token used when --token is not given
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dmchat/internal/client/api"
	"dmchat/internal/pkg/logx"
)

const defaultServer = "http://localhost:8080"

type rootOptions struct {
	server string
	token  string
	debug  bool
}

func (o *rootOptions) client() *api.Client {
	return api.New(o.server, o.token)
}

func (o *rootOptions) requireToken() error {
	if o.token == "" {
		return fmt.Errorf("not signed in: pass --token or set DMCHAT_TOKEN (see 'login')")
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "dmchat-client",
		Short:         "Command line client for dmchat direct messages",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if opts.debug {
				level = zerolog.DebugLevel
			}
			logx.InitWriterLogger(os.Stderr, level)

			if opts.server == "" {
				opts.server = envOr("DMCHAT_SERVER", defaultServer)
			}
			if opts.token == "" {
				opts.token = os.Getenv("DMCHAT_TOKEN")
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.server, "server", "s", "", "Server base URL (env DMCHAT_SERVER)")
	cmd.PersistentFlags().StringVarP(&opts.token, "token", "t", "", "Identity token (env DMCHAT_TOKEN)")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Log debug output to stderr")

	cmd.AddCommand(
		buildRegisterCmd(opts),
		buildLoginCmd(opts),
		buildSearchCmd(opts),
		buildContactsCmd(opts),
		buildChatCmd(opts),
	)

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
