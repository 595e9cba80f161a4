package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrUnsupported = errors.New("unsupported operation")

// ErrDestinationExists is returned when a copy target is already taken by
// something that is not an identical earlier copy.
var ErrDestinationExists = errors.New("destination already exists")

// ErrNameCollision means every deduplicated archive name was already taken.
// It needs an operator to clean up the archive directory.
var ErrNameCollision = errors.New("archive name collision")
