package poller

import "errors"

// ErrInvalidMaxEvents is returned by PersistentPoller.Wait for max events <= 0.
var ErrInvalidMaxEvents = errors.New("poller: max events must be positive")
