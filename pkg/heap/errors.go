package heap

import "errors"

// ErrTupleTooLarge is returned when a tuple does not fit even on a freshly
// allocated, empty page.
var ErrTupleTooLarge = errors.New("tuple too large for a page")
