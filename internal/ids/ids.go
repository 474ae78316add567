// Package ids generates the correlation ids used before a row has a durable
// identity.
package ids

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// suffix returns n random base36 characters
func suffix(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[rand.IntN(len(alphabet))])
	}
	return b.String()
}

// New returns "<prefix>_<unix ms>_<9 random chars>", or "<unix ms>_<9 random
// chars>" when prefix is empty
func New(prefix string, now time.Time) string {
	id := strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix(9)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// Message returns a correlation id for a user message
func Message(now time.Time) string { return New("msg", now) }

// Assistant returns a correlation id for an assistant reply
func Assistant(now time.Time) string { return New("ai", now) }

// Request returns an id for one webhook round trip
func Request(now time.Time) string { return New("", now) }
