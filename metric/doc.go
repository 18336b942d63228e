// Package metric provides Prometheus instrumentation for the XR runtime:
// discovery attempts, session lifecycle, frame delivery and latency. A
// MetricsRegistry owns the core collectors and lets backends register
// their own; Server exposes everything over HTTP for scraping.
package metric
