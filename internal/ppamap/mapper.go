// Package ppamap resolves an ingress PPA to its two downstream tick
// destinations (latency and frame-count), or reports the PPA is not
// routed.
package ppamap

import "fmt"

// Dests is the pair of output PPAs a routed input PPA maps to.
type Dests struct {
	LatencyPPA int
	FramesPPA  int
}

// Mapper holds the latency/frames routing tables. The two tables must
// share identical key sets; New returns an error otherwise so the
// mismatch is caught at startup rather than silently skipping PPAs at
// flush time.
type Mapper struct {
	latency map[int]int
	frames  map[int]int
}

// New builds a Mapper, validating that latency and frames share the same
// key set.
func New(latency, frames map[int]int) (*Mapper, error) {
	if len(latency) != len(frames) {
		return nil, fmt.Errorf("ppamap: latency map has %d keys, frames map has %d", len(latency), len(frames))
	}
	for k := range latency {
		if _, ok := frames[k]; !ok {
			return nil, fmt.Errorf("ppamap: ppa %d present in latency map but not frames map", k)
		}
	}
	m := &Mapper{
		latency: make(map[int]int, len(latency)),
		frames:  make(map[int]int, len(frames)),
	}
	for k, v := range latency {
		m.latency[k] = v
	}
	for k, v := range frames {
		m.frames[k] = v
	}
	return m, nil
}

// TryMap returns the output destinations for ppaIn, and whether ppaIn is
// routed at all (present in both tables).
func (m *Mapper) TryMap(ppaIn int) (Dests, bool) {
	lat, ok := m.latency[ppaIn]
	if !ok {
		return Dests{}, false
	}
	frm, ok := m.frames[ppaIn]
	if !ok {
		return Dests{}, false
	}
	return Dests{LatencyPPA: lat, FramesPPA: frm}, true
}
