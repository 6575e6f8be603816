package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/client/api"
	"dmchat/internal/client/realtime"
	"dmchat/internal/client/store"
	"dmchat/internal/pkg/logx"
)

func buildChatCmd(opts *rootOptions) *cobra.Command {
	var (
		debounce  time.Duration
		maxRecent int
		toFront   bool
	)

	cmd := &cobra.Command{
		Use:   "chat <username>",
		Short: "Open an interactive conversation",
		Long: `Open an interactive conversation with another user.

Lines typed on stdin are sent as messages. Commands:
  /img <url>   send an image URL
  /online      list online contacts
  /quit        leave`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}

			cfg := store.Config{
				DebounceInterval: debounce,
				MaxRecent:        maxRecent,
			}
			if toFront {
				cfg.RecentPolicy = store.RecentMoveToFront
			}

			return runChat(cmd.Context(), opts, args[0], cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", store.DefaultDebounceInterval, "Quiet period before a search is sent")
	cmd.Flags().IntVar(&maxRecent, "max-recent", 0, "Maximum number of recent contacts kept (0 = unbounded)")
	cmd.Flags().BoolVar(&toFront, "recent-to-front", false, "Move a contact to the front of Recent on every message")

	return cmd
}

func runChat(ctx context.Context, opts *rootOptions, peerName string, cfg store.Config, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := opts.client()

	me, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	peer, err := findUser(ctx, client, peerName)
	if err != nil {
		return err
	}

	rt, err := realtime.Dial(ctx, client.BaseURL(), client.Token())
	if err != nil {
		return err
	}
	rt.OnToken = client.SetToken
	defer rt.Close()

	st := store.New(me, client, rt, cfg)

	go func() {
		if err := rt.Run(ctx); err != nil {
			logx.Warn("Realtime connection ended", "error", err)
		}
		cancel()
	}()
	go st.Run(ctx)

	if err := st.LoadContacts(ctx); err != nil {
		logx.Warn("Failed to load contacts", "error", err)
	}
	st.Select(peer)

	fmt.Fprintf(out, "Chatting with %s (%s). Type /quit to leave.\n", peer.FullName, peer.Username)
	go render(ctx, st, me, peer, out)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(ctx, st, strings.TrimSpace(line), out); done {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, st *store.Store, line string, out io.Writer) bool {
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/online":
		snap := st.Snapshot()
		for _, u := range snap.Contacts(true) {
			fmt.Fprintf(out, "  * %s (%s)\n", u.Username, u.FullName)
		}
		return false
	}

	in := message.SendInput{Text: line}
	if url, ok := strings.CutPrefix(line, "/img "); ok {
		in = message.SendInput{Image: strings.TrimSpace(url)}
	}

	if _, err := st.Send(ctx, in); err != nil {
		fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
	}
	return false
}

// render prints messages as they enter the view, and presence changes of the peer.
func render(ctx context.Context, st *store.Store, me, peer user.User, out io.Writer) {
	printed := map[string]struct{}{}
	wasOnline := false
	var lastErr error

	for {
		select {
		case <-ctx.Done():
			return
		case <-st.Changes():
		}

		snap := st.Snapshot()
		if snap.Phase == store.PhaseFailed && snap.Err != nil && snap.Err != lastErr {
			lastErr = snap.Err
			fmt.Fprintf(out, "! failed to load conversation: %v\n", snap.Err)
		}

		for _, msg := range snap.Messages {
			if _, ok := printed[msg.ID]; ok {
				continue
			}
			printed[msg.ID] = struct{}{}

			name := peer.Username
			if msg.SenderID == me.ID {
				name = me.Username
			}
			body := msg.Text
			if msg.Image != "" {
				body = strings.TrimSpace(body + " [image] " + msg.Image)
			}
			fmt.Fprintf(out, "[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04"), name, body)
		}

		if online := snap.IsOnline(peer.ID); online != wasOnline {
			wasOnline = online
			state := "offline"
			if online {
				state = "online"
			}
			fmt.Fprintf(out, "-- %s is %s\n", peer.Username, state)
		}
	}
}

// findUser resolves a username among contacts first, then through search.
func findUser(ctx context.Context, client *api.Client, username string) (user.User, error) {
	contacts, err := client.Contacts(ctx)
	if err != nil {
		return user.User{}, err
	}
	for _, u := range contacts {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}

	found, err := client.SearchUsers(ctx, username)
	if err != nil {
		return user.User{}, err
	}
	for _, u := range found {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}

	return user.User{}, fmt.Errorf("user %q not found", username)
}
