// Package metrics holds the pipeline's Prometheus collectors.
//
// Collectors are registered with the default registry through promauto and
// served by the /metrics endpoint in serve mode. Record helpers keep label
// values in one place:
//
//	metrics.RecordIngested("NEWS", "new", len(agg.News))
//	metrics.RecordPublish(string(outcome.Status))
package metrics
