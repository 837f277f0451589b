package api

import (
	"strings"

	"github.com/segmentio/ksuid"
)

const snapshotIDPrefix = "snap_"

// NewSnapshotID generates a snapshot record ID: "snap_" followed by a KSUID,
// so IDs sort lexically by creation time.
func NewSnapshotID() string {
	return snapshotIDPrefix + ksuid.New().String()
}

// ValidateSnapshotID checks whether the given string is a snapshot record ID.
func ValidateSnapshotID(id string) bool {
	rest, ok := strings.CutPrefix(id, snapshotIDPrefix)
	if !ok {
		return false
	}
	_, err := ksuid.Parse(rest)
	return err == nil
}
