package chat

import (
	"sort"
	"strings"

	"github.com/lithammer/shortuuid/v4"
)

// idAlphabet keeps generated ids lowercase alphanumeric so they survive
// case-insensitive transports and file systems.
const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const (
	chatIDLength    = 10
	requestIDLength = 12
)

// NewChatID returns a fresh client-side chat log id: 10 lowercase
// alphanumeric characters.
func NewChatID() string {
	return shortuuid.NewWithAlphabet(idAlphabet)[:chatIDLength]
}

// NewRequestID returns a fresh wire request id: 12 lowercase alphanumeric
// characters.
func NewRequestID() string {
	return shortuuid.NewWithAlphabet(idAlphabet)[:requestIDLength]
}

// OneToOneTopicID derives the canonical topic id of a one-to-one chat. The
// participants are sorted so both sides compute the same id.
func OneToOneTopicID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}
