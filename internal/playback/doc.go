// Package playback schedules decoded audio payloads on a monotonic virtual
// timeline so fragments play back sequentially and gapless regardless of
// decode-latency jitter, and supports hard interruption.
package playback
