// Package live implements the client side of the bidirectional streaming
// protocol used by Gemini Live voice sessions.
//
// A session is a single websocket connection: the client opens it with a
// setup message describing model and generation options, then streams
// realtime audio input while the server streams model audio, transcriptions
// and turn events back.
package live
