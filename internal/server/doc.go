// Package server exposes the HTTP control and monitoring API for the live
// voice client: session control, transcript access, saved conversations,
// runtime statistics and Prometheus metrics.
package server
