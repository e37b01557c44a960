//go:build ruleguard
// +build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// Backoff and balance polling must stop when the job is aborted.
func NoBareSleep(m dsl.Matcher) {
	m.Match("time.Sleep($d)").
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("Use mtime.Sleep() so that the wait honors its context.")
}
