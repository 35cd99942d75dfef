package document

import "errors"

var (
	ErrInvalidFileType      = errors.New("invalid file type")
	ErrRemoteUnreachable    = errors.New("remote store unreachable")
	ErrStorageQuotaExceeded = errors.New("local storage quota exceeded")
	ErrNotFound             = errors.New("document not found")
	ErrUnknownDocType       = errors.New("unknown document type")
)

// PartialSplitFailure is the warning code attached to an upload whose package
// split produced fewer documents than expected.
const PartialSplitFailure = "PartialSplitFailure"
