package loadtest

import "time"

// Defaults applied by Normalize.
const (
	DefaultUsers      = 100
	DefaultRepeat     = 1
	DefaultTopN       = 50
	DefaultWorkers    = 8
	DefaultTimeout    = 30 * time.Second
	DefaultUserPrefix = "load"

	workerChannelMultiplier = 2
	progressInterval        = time.Second
	pointsTolerance         = 1e-6
	percentageMultiplier    = 100
	reportFilePermission    = 0o600
	reportDirPermission     = 0o750
)

// Header carrying the calling user.
const headerUserID = "X-User-ID"
