package common

import (
	"errors"
)

var ErrNoSourceFiles = errors.New("no usable source files")
var ErrSessionActive = errors.New("archive session already active")
var ErrNothingArchived = errors.New("no files could be archived")
var ErrMediaNotFound = errors.New("media not found")
var ErrMediaTooLarge = errors.New("media too large")
var ErrFinalizeFailed = errors.New("archive could not be finalized")
var ErrCancelled = errors.New("archive generation cancelled")
