package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func createUser(t *testing.T, s Store, username, fullName string) user.User {
	t.Helper()

	acc, err := s.CreateUser(context.Background(), user.Account{
		User:         user.User{ID: uuid.NewString(), Username: username, FullName: fullName},
		PasswordHash: []byte("hash"),
		CreatedAt:    time.Now(),
	})
	require.NoError(t, err)
	return acc.User
}

func TestOpenSQLiteDSN(t *testing.T) {
	store, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "dsn.db"))
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Ping(context.Background()))

	_, err = Open(context.Background(), "mysql://root:pw@localhost/db")
	assert.ErrorContains(t, err, "mysql://***")
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")

	s1, err := NewSQLite(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewSQLite(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestSQLiteUsers(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	alice := createUser(t, s, "alice", "Alice Liddell")

	_, err := s.CreateUser(ctx, user.Account{
		User:         user.User{ID: uuid.NewString(), Username: "ALICE", FullName: "Dup"},
		PasswordHash: []byte("hash"),
		CreatedAt:    time.Now(),
	})
	assert.ErrorIs(t, err, user.ErrUsernameTaken)

	got, err := s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	_, err = s.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, user.ErrNotFound)

	acc, err := s.GetAccountByUsername(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, acc.ID)
	assert.Nil(t, acc.LastLoginAt)

	now := time.Now()
	require.NoError(t, s.TouchLastLogin(ctx, alice.ID, now))
	acc, err = s.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, acc.LastLoginAt)
	assert.WithinDuration(t, now, *acc.LastLoginAt, time.Millisecond)
}

func TestSQLiteSearchUsers(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	alice := createUser(t, s, "alice", "Alice Liddell")
	bob := createUser(t, s, "bob", "Bob Alison")
	createUser(t, s, "carol", "Carol_100%")

	got, err := s.SearchUsers(ctx, "ALI", alice.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, []user.User{bob}, got)

	got, err = s.SearchUsers(ctx, "ali", "", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// wildcards match literally
	got, err = s.SearchUsers(ctx, "0%", "", 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "carol", got[0].Username)

	got, err = s.SearchUsers(ctx, "l_d", "", 20)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteConversation(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	alice := createUser(t, s, "alice", "Alice")
	bob := createUser(t, s, "bob", "Bob")
	carol := createUser(t, s, "carol", "Carol")

	var sent []message.Message
	for i, d := range []message.Draft{
		{SenderID: alice.ID, ReceiverID: bob.ID, Text: "hi"},
		{SenderID: bob.ID, ReceiverID: alice.ID, Text: "hello", Image: "https://x.test/a.png"},
		{SenderID: carol.ID, ReceiverID: alice.ID, Text: "psst"},
		{SenderID: alice.ID, ReceiverID: bob.ID, Text: "again"},
	} {
		m, err := s.SaveMessage(ctx, d)
		require.NoError(t, err, i)
		assert.NotEmpty(t, m.ID)
		sent = append(sent, m)
	}

	got, err := s.ListConversation(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []message.Message{sent[0], sent[1], sent[3]}, got)

	got, err = s.ListConversation(ctx, bob.ID, carol.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	contacts, err := s.ListContacts(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []user.User{bob, carol}, contacts)

	contacts, err = s.ListContacts(ctx, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, []user.User{alice}, contacts)
}

func TestSQLiteRejectsUnknownSender(t *testing.T) {
	s := openTestSQLite(t)
	bob := createUser(t, s, "bob", "Bob")

	_, err := s.SaveMessage(context.Background(), message.Draft{SenderID: "ghost", ReceiverID: bob.ID, Text: "boo"})
	assert.Error(t, err)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `%a\%b\_c\\d%`, escapeLike(`a%b_c\d`))
}
