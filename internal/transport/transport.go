// Package transport holds the external collaborator boundary for the
// ingress side of the pipeline (C14). The wire protocol, reconnection
// logic, and subscription-string format are deliberately out of scope;
// only the interfaces the dispatcher depends on live here, plus an
// in-memory fake for tests.
package transport

// RawMeasurement is one undecoded measurement as handed off by the
// transport, before key resolution.
type RawMeasurement struct {
	ID    any
	TMeas float64
	Value float64
	Flags int
}

// MetadataLookup resolves an opaque transport identifier to the
// internal integer key used throughout the pipeline.
type MetadataLookup interface {
	KeyFor(id any) (key int, ok bool)
}

// MeasurementSource is the capability the dispatcher registers a batch
// callback against and subscribes through.
type MeasurementSource interface {
	OnBatch(fn func(batch []RawMeasurement))
	Subscribe(subscription string) error
}
