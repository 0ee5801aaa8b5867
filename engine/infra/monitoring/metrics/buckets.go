package metrics

// HTTPDurationBuckets defines latency buckets for HTTP request duration metrics.
var HTTPDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// SessionDurationBuckets covers websocket sessions from seconds to an hour.
var SessionDurationBuckets = []float64{1, 5, 15, 30, 60, 300, 600, 1800, 3600}

// DrainSizeBuckets groups the number of envelopes returned by one queue drain.
var DrainSizeBuckets = []float64{0, 1, 5, 10, 25, 50}
