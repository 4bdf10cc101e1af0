// Package metrics collects live-session counters and latency measurements.
//
// The collector keeps an in-memory snapshot served over the HTTP API and
// mirrors every signal into Prometheus metrics for scraping.
package metrics
