package model

import "errors"

// errMalformed is wrapped by ParseNodeRef's specific messages so callers
// can errors.Is check without depending on shared (which would create an
// import cycle with components that import both model and shared).
var errMalformed = errors.New("malformed node reference")

// ErrMalformedNodeRef is the exported form for callers outside this package.
var ErrMalformedNodeRef = errMalformed
