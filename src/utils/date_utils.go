package utils

import "time"

const timestampLayout = "02/01/2006 15:04:05"

// FormatTimestamp renders a unix timestamp as a UTC date string for
// user-facing diagnostics.
func FormatTimestamp(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(timestampLayout)
}
