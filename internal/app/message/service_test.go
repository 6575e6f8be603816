package message

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/app/user"
	"dmchat/internal/pkg/errs"
)

type fakeStore struct {
	mu      sync.Mutex
	saved   []Message
	saveErr error
}

func (f *fakeStore) SaveMessage(_ context.Context, d Draft) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return Message{}, f.saveErr
	}
	msg := Message{
		ID:         fmt.Sprintf("m%d", len(f.saved)+1),
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Text:       d.Text,
		Image:      d.Image,
		CreatedAt:  time.Now(),
	}
	f.saved = append(f.saved, msg)
	return msg, nil
}

func (f *fakeStore) ListConversation(_ context.Context, a, b string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.saved {
		if m.Between(a, b) {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeDirectory map[string]user.User

func (d fakeDirectory) Get(_ context.Context, id string) (user.User, error) {
	u, ok := d[id]
	if !ok {
		return user.User{}, errs.NewError(errs.ErrUserNotFound)
	}
	return u, nil
}

type recordingDeliverer struct {
	mu  sync.Mutex
	got []Message
}

func (r *recordingDeliverer) Deliver(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, msg)
}

type fakeImages struct {
	uploaded  map[string][]byte
	deleted   []string
	uploadErr error
}

func (f *fakeImages) Upload(_ context.Context, key, _ string, body io.Reader) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploaded[key] = b
	return nil
}

func (f *fakeImages) PublicURL(key string) string { return "https://cdn.test/" + key }

func (f *fakeImages) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type fixture struct {
	store   *fakeStore
	deliver *recordingDeliverer
	images  *fakeImages
	svc     *Service
}

func newFixture(withImages bool) *fixture {
	f := &fixture{
		store:   &fakeStore{},
		deliver: &recordingDeliverer{},
	}
	dir := fakeDirectory{
		"alice": {ID: "alice", Username: "alice"},
		"bob":   {ID: "bob", Username: "bob"},
	}
	var images ImageStore
	if withImages {
		f.images = &fakeImages{uploaded: map[string][]byte{}}
		images = f.images
	}
	f.svc = NewService(f.store, dir, f.deliver, images, nil)
	return f
}

func TestSendPersistsThenDelivers(t *testing.T) {
	f := newFixture(false)

	msg, err := f.svc.Send(context.Background(), "alice", "bob", SendInput{Text: "  hi  "})
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.Equal(t, "hi", msg.Text)
	assert.Empty(t, msg.Image)
	assert.Equal(t, []Message{msg}, f.deliver.got)
	assert.Equal(t, []Message{msg}, f.store.saved)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	cases := []struct {
		name     string
		receiver string
		in       SendInput
		code     int
	}{
		{"self", "alice", SendInput{Text: "hi"}, errs.ErrRecipientInvalid},
		{"no receiver", "", SendInput{Text: "hi"}, errs.ErrRecipientInvalid},
		{"empty", "bob", SendInput{Text: "   "}, errs.ErrMessageEmpty},
		{"too long", "bob", SendInput{Text: strings.Repeat("é", MaxTextLength+1)}, errs.ErrMessageContentTooLong},
		{"bad image", "bob", SendInput{Image: "ftp://x.test/a.png"}, errs.ErrImageInvalid},
		{"not an image", "bob", SendInput{Image: "https://x.test/a.pdf"}, errs.ErrImageInvalid},
		{"unknown receiver", "carol", SendInput{Text: "hi"}, errs.ErrUserNotFound},
		{"storage disabled", "bob", SendInput{Image: "data:image/png;base64,AAAA"}, errs.ErrStorageDisabled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Send(ctx, "alice", tc.receiver, tc.in)
			assert.True(t, errs.Is(err, tc.code), "got %v", err)
		})
	}

	assert.Empty(t, f.deliver.got)
	assert.Empty(t, f.store.saved)

	_, err := f.svc.Send(ctx, "alice", "bob", SendInput{Text: strings.Repeat("é", MaxTextLength)})
	assert.NoError(t, err)
}

func TestSendAcceptsImageURL(t *testing.T) {
	f := newFixture(false)

	msg, err := f.svc.Send(context.Background(), "alice", "bob", SendInput{Image: "https://x.test/cat.JPEG"})
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/cat.JPEG", msg.Image)
}

func TestSendUploadsInlineImage(t *testing.T) {
	f := newFixture(true)
	raw := []byte("gif-bytes")

	msg, err := f.svc.Send(context.Background(), "alice", "bob", SendInput{
		Image: "data:image/gif;base64," + base64.StdEncoding.EncodeToString(raw),
	})
	require.NoError(t, err)

	require.Len(t, f.images.uploaded, 1)
	for key, body := range f.images.uploaded {
		assert.True(t, strings.HasPrefix(key, "images/alice/"))
		assert.Equal(t, raw, body)
		assert.Equal(t, "https://cdn.test/"+key, msg.Image)
	}
}

func TestSendUploadFailure(t *testing.T) {
	f := newFixture(true)
	f.images.uploadErr = errors.New("s3 down")

	_, err := f.svc.Send(context.Background(), "alice", "bob", SendInput{Image: "data:image/png;base64,AAAA"})
	assert.True(t, errs.Is(err, errs.ErrFileStorageFailed))
	assert.Empty(t, f.deliver.got)
}

func TestSendPersistFailureDeliversNothing(t *testing.T) {
	f := newFixture(true)
	f.store.saveErr = errors.New("disk full")

	_, err := f.svc.Send(context.Background(), "alice", "bob", SendInput{
		Text:  "hi",
		Image: "data:image/png;base64,AAAA",
	})
	assert.True(t, errs.Is(err, errs.ErrMessagePersistFailed))
	assert.Empty(t, f.deliver.got)
	assert.Len(t, f.images.deleted, 1)
}

func TestHistory(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	got, err := f.svc.History(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	m1, err := f.svc.Send(ctx, "alice", "bob", SendInput{Text: "one"})
	require.NoError(t, err)
	m2, err := f.svc.Send(ctx, "bob", "alice", SendInput{Text: "two"})
	require.NoError(t, err)

	got, err = f.svc.History(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, []Message{m1, m2}, got)
}

func TestMessageHelpers(t *testing.T) {
	m := Message{SenderID: "a", ReceiverID: "b"}
	assert.Equal(t, "b", m.Peer("a"))
	assert.Equal(t, "a", m.Peer("b"))
	assert.True(t, m.Between("b", "a"))
	assert.False(t, m.Between("a", "c"))
}
