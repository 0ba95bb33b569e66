// Package metrics exposes the gateway's Prometheus metrics: HTTP traffic,
// auth rejections, entity cache hit rates, event stream connections and
// deliveries, messaging traffic, and the Go runtime and process collectors.
package metrics
