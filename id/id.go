// Package id generates the identifiers used for positions, pending orders
// and history records.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// Monotonic so ids minted inside one millisecond still sort by issue order.
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string. Ids sort lexicographically by creation time,
// which keeps journal tables and history listings in open/close order.
func New() string {
	return At(time.Now())
}

// At returns a ULID stamped with t. Replayed feeds use the tick time so ids
// follow the replay clock rather than the wall clock.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		// Only possible when entropy fails or t predates the previous id in
		// the same millisecond window; fall back to the wall clock.
		id = ulid.MustNew(ulid.Now(), mono)
	}
	return id.String()
}

// Time extracts the timestamp encoded in an id produced by New or At.
func Time(s string) (time.Time, bool) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()).UTC(), true
}
