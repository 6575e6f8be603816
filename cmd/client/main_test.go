package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/app/chat"
	"dmchat/internal/app/db"
	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/client/api"
	"dmchat/internal/client/store"
	"dmchat/internal/configs"
	"dmchat/internal/handler"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/metrics"
)

func newServer(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	st, err := db.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	hub := chat.NewHub(chat.HubConfig{JWTSecret: "test-secret"}, m)
	users := user.NewService(st)

	srv := httptest.NewServer(handler.Router(ctx, &handler.AppDeps{
		Hub:      hub,
		Config:   &configs.AppConfig{Environment: configs.EnvDevelopment, JWTSecret: "test-secret"},
		Users:    users,
		Messages: message.NewService(st, users, hub, nil, m),
		Metrics:  m,
	}))
	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
		cancel()
		st.Close()
	})

	return srv.URL
}

// syncBuffer is written by the render goroutine and the input loop at once.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := buildRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func tokenFrom(t *testing.T, output string) string {
	t.Helper()

	for _, line := range strings.Split(output, "\n") {
		if token, ok := strings.CutPrefix(line, "export DMCHAT_TOKEN="); ok {
			return token
		}
	}
	t.Fatalf("no token in output: %q", output)
	return ""
}

func signUp(t *testing.T, url, username, fullName string) api.Session {
	t.Helper()

	s, err := api.New(url, "").Register(context.Background(), user.RegisterInput{
		Username: username,
		Password: "secret123",
		FullName: fullName,
	})
	require.NoError(t, err)
	return s
}

func TestAccountCommands(t *testing.T) {
	t.Setenv("DMCHAT_SERVER", "")
	t.Setenv("DMCHAT_TOKEN", "")
	url := newServer(t)

	out, err := runCLI(t, "-s", url, "register", "-u", "alice", "-p", "secret123", "--full-name", "Alice Liddell")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as alice (Alice Liddell)")

	signUp(t, url, "bobby", "Bob Builder")

	out, err = runCLI(t, "-s", url, "login", "-u", "alice", "-p", "secret123")
	require.NoError(t, err)
	token := tokenFrom(t, out)

	out, err = runCLI(t, "-s", url, "-t", token, "search", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "bobby")
	assert.Contains(t, out, "Bob Builder")
	assert.Contains(t, out, "offline")

	out, err = runCLI(t, "-s", url, "-t", token, "search", "xy")
	require.NoError(t, err)
	assert.Contains(t, out, "No users.")

	_, err = runCLI(t, "-s", url, "login", "-u", "alice", "-p", "wrong-password")
	assert.True(t, api.IsCode(err, errs.ErrInvalidCredentials), "got %v", err)

	_, err = runCLI(t, "-s", url, "search", "bob")
	assert.ErrorContains(t, err, "not signed in")
}

func TestChatSendsLinesUntilQuit(t *testing.T) {
	t.Setenv("DMCHAT_TOKEN", "")
	url := newServer(t)

	alice := signUp(t, url, "alice", "Alice Liddell")
	bob := signUp(t, url, "bobby", "Bob Builder")

	in := strings.NewReader(strings.Join([]string{
		"hello bob",
		"",
		"/online",
		"/img https://cdn.test/cat.png",
		"/quit",
		"never sent",
	}, "\n") + "\n")
	out := &syncBuffer{}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := &rootOptions{server: url, token: alice.Token}
	require.NoError(t, runChat(ctx, opts, "BOBBY", store.Config{}, in, out))
	assert.Contains(t, out.String(), "Chatting with Bob Builder (bobby)")

	msgs, err := api.New(url, bob.Token).Conversation(ctx, alice.User.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello bob", msgs[0].Text)
	assert.Equal(t, alice.User.ID, msgs[0].SenderID)
	assert.Equal(t, "https://cdn.test/cat.png", msgs[1].Image)
	assert.Empty(t, msgs[1].Text)

	// the conversation now shows up in contacts
	contacts, err := runCLI(t, "-s", url, "-t", alice.Token, "contacts")
	require.NoError(t, err)
	assert.Contains(t, contacts, "bobby")

	online, err := runCLI(t, "-s", url, "-t", alice.Token, "contacts", "--online")
	require.NoError(t, err)
	assert.Contains(t, online, "No users.")
}

func TestChatUnknownPeer(t *testing.T) {
	url := newServer(t)
	alice := signUp(t, url, "alice", "Alice Liddell")

	opts := &rootOptions{server: url, token: alice.Token}
	err := runChat(context.Background(), opts, "nobody", store.Config{}, strings.NewReader(""), io.Discard)
	assert.ErrorContains(t, err, `user "nobody" not found`)
}
