package catalog

import "errors"

// ErrInvalidInput is returned when input fails validation.
var ErrInvalidInput = errors.New("catalog: invalid input")

// ErrUnknownRetailer is returned when a run is requested for a retailer
// that has no configuration or no registered adapter.
var ErrUnknownRetailer = errors.New("catalog: unknown retailer")

// ErrDuplicateRun is returned when a run id collides with an already
// recorded run.
var ErrDuplicateRun = errors.New("catalog: duplicate run")

// ErrCrawlFailed wraps an adapter failure. Fatal to that retailer's run
// only; other retailers' runs proceed.
var ErrCrawlFailed = errors.New("catalog: crawl failed")
