package storage

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Key under which the profile collection JSON is persisted.
const profilesKey = "profiles.config"
