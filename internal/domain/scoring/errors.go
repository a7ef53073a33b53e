package scoring

import "errors"

// ErrScoreUnavailable covers every scorer failure: timeout, transport error,
// non-2xx status, malformed body or a missing relevancy score.
var ErrScoreUnavailable = errors.New("score unavailable")
