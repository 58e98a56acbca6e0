// Package ident generates the timestamped, prefix-tagged identifiers used
// throughout the control plane (agent IDs, snapshot IDs, approval IDs,
// session IDs). Every identifier is sortable by creation time and carries a
// short random suffix to avoid collisions when many IDs are minted within
// the same clock tick.
package ident

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clock returns the current time. Tests may replace it to produce
// deterministic identifiers.
var Clock = time.Now

// New mints an identifier of the form "<prefix>_<unixnanohex><suffix6>" where
// the timestamp component is the hex-encoded Unix nanosecond time and the suffix
// is the first six hex characters of a random UUID. The result sorts
// lexicographically in creation order for a given prefix.
func New(prefix string) string {
	ts := Clock().UTC()
	return fmt.Sprintf("%s_%s%s", prefix, encodeTime(ts), randomSuffix())
}

// SessionID formats a session identifier using the configured strftime-like
// layout, substituting Go's reference-time equivalents for the common
// Python strftime directives the spec's default
// ("session_%Y%m%d_%H%M%S") uses. Unrecognized directives are left as-is.
func SessionID(format string, t time.Time) string {
	if format == "" {
		format = "session_%Y%m%d_%H%M%S"
	}
	repl := strings.NewReplacer(
		"%Y", fmt.Sprintf("%04d", t.Year()),
		"%m", fmt.Sprintf("%02d", int(t.Month())),
		"%d", fmt.Sprintf("%02d", t.Day()),
		"%H", fmt.Sprintf("%02d", t.Hour()),
		"%M", fmt.Sprintf("%02d", t.Minute()),
		"%S", fmt.Sprintf("%02d", t.Second()),
	)
	return repl.Replace(format)
}

func encodeTime(t time.Time) string {
	return fmt.Sprintf("%x", t.UnixNano())
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
