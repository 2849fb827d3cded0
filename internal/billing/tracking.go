package billing

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	trackingPrefix    = "PRJ"
	trackingSuffixLen = 6
)

// TrackingCodeFunc synthesizes a candidate engagement code for the given instant.
type TrackingCodeFunc func(now time.Time) (string, error)

// NewTrackingCode returns a code like PRJ-20250115-7K3QZD: the allocation date followed
// by six Crockford base32 characters taken from the random half of a ULID.
func NewTrackingCode(now time.Time) (string, error) {
	return newTrackingCode(now, rand.Reader)
}

func newTrackingCode(now time.Time, entropy io.Reader) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", fmt.Errorf("generate tracking entropy: %w", err)
	}
	s := id.String()
	return fmt.Sprintf("%s-%s-%s", trackingPrefix, now.UTC().Format("20060102"), s[len(s)-trackingSuffixLen:]), nil
}
