// Package session orchestrates a live voice conversation end to end.
//
// The engine owns the microphone capture pipeline, the outbound audio queue
// and its pacer, the playback scheduler, the transcript log and the
// streaming connection, and drives them through a single state machine.
// Every asynchronous completion (dial results, server frames, timers,
// capture chunks) is tagged with a generation counter so events from a
// torn-down session cannot touch its successor.
package session
