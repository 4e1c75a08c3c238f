package conversation

import (
	"crypto/rand"
	"fmt"
	"time"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewConversationID produces an opaque conversation identifier of the form
// conv_{ms-epoch}_{random9}. The millisecond prefix gives rough ordering
// for human debugging; the random suffix makes collisions negligible.
// Callers must not parse the structure.
func NewConversationID() string {
	return newConversationIDAt(time.Now())
}

func newConversationIDAt(now time.Time) string {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// nanosecond-derived suffix rather than returning an error from an
		// identifier factory.
		nano := now.UnixNano()
		for i := range buf {
			buf[i] = byte(nano >> (i * 7))
		}
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return fmt.Sprintf("conv_%d_%s", now.UnixMilli(), buf)
}
