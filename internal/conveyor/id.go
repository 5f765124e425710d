package conveyor

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// IDGenerator produces globally unique identifiers for new rows.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator is the default IDGenerator, backed by random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string { return uuid.NewString() }

// ShortID generates a short random id with the given prefix, used for
// non-persistent identifiers such as events.
func ShortID(prefix string) string {
	b := make([]byte, 8)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
