/*
Package message defines the direct message record and the write/read paths around it.

A Message is created once by the persistence layer and never modified afterwards.
The Service validates a send request, uploads an inline image when one is given,
persists the message, and only then hands it to the realtime Deliverer.
*/
package message

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"dmchat/internal/pkg/errs"
)

// MaxTextLength is the maximum number of characters of message text, after trimming.
const MaxTextLength = 1000

var imageURLPattern = regexp.MustCompile(`(?i)^https?://.+\.(jpg|jpeg|png|gif|webp)$`)

// Message is one persisted direct message.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Peer returns the other participant of the conversation as seen by selfID.
func (m Message) Peer(selfID string) string {
	if m.SenderID == selfID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Between reports whether the message belongs to the conversation of a and b.
func (m Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Draft is a validated message that has not been persisted yet.
type Draft struct {
	SenderID   string
	ReceiverID string
	Text       string
	Image      string
}

// NormalizeText trims text and enforces MaxTextLength.
func NormalizeText(text string) (string, *errs.CustomError) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", errs.NewError(errs.ErrMessageContentTooLong, MaxTextLength)
	}
	return text, nil
}

// ValidImageURL reports whether s is an http(s) URL of an allowed image type.
func ValidImageURL(s string) bool {
	return imageURLPattern.MatchString(s)
}
