// Package metrics exposes Prometheus collectors for an ioprocess client.
//
// Collectors always exist so call sites never branch on whether metrics are
// enabled; they are only registered when a registerer is supplied.
package metrics
