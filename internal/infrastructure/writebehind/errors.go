package writebehind

import "errors"

// ErrStoreUnavailable is returned by Submit when the job cannot be queued.
// Jobs that exhaust their retries are reported with it wrapped around the
// last attempt's error.
var ErrStoreUnavailable = errors.New("writebehind: store unavailable")
