package processor

import "github.com/firestige/tickwatch/pkg/models"

// windowStats is the mutable per-key running aggregate held inside one
// shard. It is only ever touched while the owning shard's lock is held.
type windowStats struct {
	count   int
	sumMS   float64
	maxMS   float64
	lastMS  float64
	dropped int
}

func (s *windowStats) recordSample(latMS float64) {
	s.count++
	s.sumMS += latMS
	s.lastMS = latMS
	if latMS > s.maxMS {
		s.maxMS = latMS
	}
}

func (s *windowStats) recordDrop() {
	s.dropped++
}

func (s *windowStats) row(key int) models.WindowRow {
	mean := 0.0
	if s.count > 0 {
		mean = s.sumMS / float64(s.count)
	}
	return models.WindowRow{
		Key:     key,
		Count:   s.count,
		MeanMS:  mean,
		MaxMS:   s.maxMS,
		LastMS:  s.lastMS,
		Dropped: s.dropped,
	}
}
