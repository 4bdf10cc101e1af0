// Package audio handles microphone capture, PCM format conversion, and
// outbound chunk buffering. It re-blocks irregular device callbacks into
// fixed-size sample chunks and encodes them for network delivery.
package audio
