package appclient

// Metrics receives client telemetry. A nil Metrics in Config disables
// collection with zero overhead. The metrics package provides a
// Prometheus-backed implementation.
type Metrics interface {
	// LoginFinished is called once per underlying login network attempt.
	LoginFinished(provider string, err error)

	// RefreshFinished is called once per underlying refresh network attempt,
	// regardless of how many callers were attached to it.
	RefreshFinished(err error)

	// CallFinished is called once per execute of a Data API operation.
	// retried reports whether the call went through a refresh-and-retry.
	CallFinished(action string, retried bool, err error)
}
