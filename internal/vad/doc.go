// Package vad provides lightweight voice-activity detection over RMS
// loudness. It flags the onset of speech once per user turn and derives the
// bounded volume signal used for visual feedback.
package vad
