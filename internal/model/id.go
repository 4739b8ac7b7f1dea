package model

import "github.com/oklog/ulid/v2"

// NewRunID generates a ULID string for a run. ULIDs sort lexicographically
// by creation time, so run listings order naturally without an extra column.
func NewRunID() string {
	return ulid.Make().String()
}

// NewGroupID generates a ULID string shared by the sibling runs of one
// multi-skill execution request.
func NewGroupID() string {
	return ulid.Make().String()
}
