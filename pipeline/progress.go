package pipeline

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// ProgressReporter logs throughput and an ETA every `every` completions.
// The figures are estimates only.
type ProgressReporter struct {
	total  int
	every  int64
	start  time.Time
	done   atomic.Int64
	logger *slog.Logger
	now    func() time.Time
}

// Progress is one milestone snapshot.
type Progress struct {
	Processed  int64
	Total      int
	AvgPerTask time.Duration
	Remaining  time.Duration
}

func NewProgressReporter(total, every int, logger *slog.Logger) *ProgressReporter {
	if logger == nil {
		logger = slog.Default()
	}
	if every < 1 {
		every = 1
	}
	return &ProgressReporter{
		total:  total,
		every:  int64(every),
		start:  time.Now(),
		logger: logger,
		now:    time.Now,
	}
}

// Observe counts one completion. It returns the snapshot it logged, if any.
func (p *ProgressReporter) Observe() (Progress, bool) {
	n := p.done.Add(1)
	if n%p.every != 0 {
		return Progress{}, false
	}

	elapsed := p.now().Sub(p.start)
	avg := elapsed / time.Duration(n)
	left := int64(p.total) - n
	if left < 0 {
		left = 0
	}
	snap := Progress{
		Processed:  n,
		Total:      p.total,
		AvgPerTask: avg,
		Remaining:  avg * time.Duration(left),
	}
	p.logger.Info("progress",
		"processed", snap.Processed,
		"total", snap.Total,
		"avg_seconds_per_task", snap.AvgPerTask.Seconds(),
		"eta_seconds", snap.Remaining.Seconds(),
	)
	return snap, true
}

func (p *ProgressReporter) Processed() int64 { return p.done.Load() }

// EstimateDuration is the lower bound imposed by the rate ceiling alone.
func EstimateDuration(total, perSecond int) time.Duration {
	if perSecond < 1 {
		return 0
	}
	return time.Duration(float64(total) / float64(perSecond) * float64(time.Second))
}
