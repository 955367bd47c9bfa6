package telemetry

import "github.com/delaneyj/scopeparty/scope"

type multi []scope.Instrumentation

// Multi fans observations out to every non-nil instrumentation, in order.
func Multi(instrumentations ...scope.Instrumentation) scope.Instrumentation {
	m := make(multi, 0, len(instrumentations))
	for _, in := range instrumentations {
		if in != nil {
			m = append(m, in)
		}
	}
	return m
}

func (m multi) ObserveDigest(stats scope.DigestStats) {
	for _, in := range m {
		in.ObserveDigest(stats)
	}
}

func (m multi) ObserveFailure(kind scope.Kind) {
	for _, in := range m {
		in.ObserveFailure(kind)
	}
}
