// Package transcript maintains the conversation log for a live session.
//
// Incremental transcription fragments arrive out of band from both the user
// and the model; the log merges consecutive fragments of the same role into
// a single open item per role, closing items when a turn completes. Finished
// conversations can be persisted to disk and restored later.
package transcript
