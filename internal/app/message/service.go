package message

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"dmchat/internal/app/storage"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/metrics"
)

// Store is the persistence collaborator of the message paths.
type Store interface {
	// SaveMessage assigns the id and creation time and writes the message.
	SaveMessage(ctx context.Context, d Draft) (Message, error)

	// ListConversation returns the messages between a and b, oldest first.
	ListConversation(ctx context.Context, a, b string) ([]Message, error)
}

// Directory resolves user ids; *user.Service satisfies it.
type Directory interface {
	Get(ctx context.Context, id string) (user.User, error)
}

// Deliverer pushes a persisted message to the receiver's live connections.
type Deliverer interface {
	Deliver(msg Message)
}

// ImageStore is the subset of storage.StorageService used for inline images.
type ImageStore interface {
	Upload(ctx context.Context, key string, mimeType string, body io.Reader) error
	PublicURL(key string) string
	Delete(ctx context.Context, key string) error
}

// SendInput is the body of a send request. Image may be an image URL or a base64 data URL.
type SendInput struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Service implements sending and reading direct messages.
type Service struct {
	store     Store
	users     Directory
	deliverer Deliverer
	images    ImageStore
	metrics   *metrics.Collector
	logger    zerolog.Logger
}

// NewService wires the message paths. images may be nil, in which case inline
// images are rejected with ErrStorageDisabled.
func NewService(store Store, users Directory, deliverer Deliverer, images ImageStore, m *metrics.Collector) *Service {
	return &Service{
		store:     store,
		users:     users,
		deliverer: deliverer,
		images:    images,
		metrics:   m,
		logger:    logx.Component("message"),
	}
}

// Send validates in, persists it as a message from senderID to receiverID, and
// delivers it in real time. Nothing is delivered when persistence fails.
func (s *Service) Send(ctx context.Context, senderID, receiverID string, in SendInput) (Message, error) {
	if receiverID == "" || receiverID == senderID {
		return Message{}, errs.NewError(errs.ErrRecipientInvalid)
	}

	text, cErr := NormalizeText(in.Text)
	if cErr != nil {
		return Message{}, cErr
	}
	image := strings.TrimSpace(in.Image)
	if text == "" && image == "" {
		return Message{}, errs.NewError(errs.ErrMessageEmpty)
	}

	if _, err := s.users.Get(ctx, receiverID); err != nil {
		return Message{}, err
	}

	var uploadedKey string
	if storage.IsDataURL(image) {
		key, url, err := s.uploadInline(ctx, senderID, image)
		if err != nil {
			return Message{}, err
		}
		uploadedKey, image = key, url
	}

	if image != "" && !ValidImageURL(image) {
		return Message{}, errs.NewError(errs.ErrImageInvalid)
	}

	msg, err := s.store.SaveMessage(ctx, Draft{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
	})
	if err != nil {
		if uploadedKey != "" {
			if delErr := s.images.Delete(context.WithoutCancel(ctx), uploadedKey); delErr != nil {
				s.logger.Warn().Err(delErr).Str("key", uploadedKey).Msg("Failed to remove orphaned image")
			}
		}
		return Message{}, errs.NewError(errs.ErrMessagePersistFailed, err)
	}

	s.metrics.MessagePersisted()
	s.logger.Debug().
		Str("message_id", msg.ID).
		Str("sender_id", msg.SenderID).
		Str("receiver_id", msg.ReceiverID).
		Msg("Message persisted")

	s.deliverer.Deliver(msg)

	return msg, nil
}

// uploadInline stores a data URL image and returns its key and public URL.
func (s *Service) uploadInline(ctx context.Context, ownerID, dataURL string) (string, string, error) {
	if s.images == nil {
		return "", "", errs.NewError(errs.ErrStorageDisabled)
	}

	mimeType, data, cErr := storage.DecodeDataURL(dataURL)
	if cErr != nil {
		return "", "", cErr
	}

	key := storage.ImageKey(ownerID, mimeType)
	if err := s.images.Upload(ctx, key, mimeType, bytes.NewReader(data)); err != nil {
		return "", "", errs.NewError(errs.ErrFileStorageFailed, err)
	}

	return key, s.images.PublicURL(key), nil
}

// History returns the conversation between selfID and peerID, oldest first.
func (s *Service) History(ctx context.Context, selfID, peerID string) ([]Message, error) {
	if peerID == "" {
		return nil, errs.NewError(errs.ErrRecipientInvalid)
	}

	msgs, err := s.store.ListConversation(ctx, selfID, peerID)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}
