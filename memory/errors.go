package memory

import "errors"

// ErrBudgetExceeded is returned by the assembler when mandatory content
// (the current user utterance) cannot fit the configured budget. This is
// a configuration error for the turn and the only assembly failure that
// propagates to the caller; everything else degrades.
var ErrBudgetExceeded = errors.New("prompt budget cannot fit current utterance")

// ErrStoreUnavailable wraps connectivity and timeout failures from store
// adapters. The recall path absorbs it (empty result); the write path
// logs and optionally queues the fact for retry. It never reaches the
// end user.
var ErrStoreUnavailable = errors.New("memory store unavailable")
