// Package pacer implements the ingestion core's pseudo-realtime replay
// pacing: given a positive factor, it sleeps (ti - ti-1)/factor between
// emissions, following original_source's
// libvast/src/actor/source/pcap.cpp pseudo_realtime_ branch.
package pacer

import (
	"context"
	"time"

	"github.com/awesome-security/vast/internal/vlog"
)

// Pacer slows emission to simulate real time at 1/factor speed of a
// trace's own timestamps. factor <= 0 disables pacing entirely.
type Pacer struct {
	factor        int64
	lastTimestamp int64 // nanoseconds; zero means "no prior event yet"
	log           vlog.Logger
}

// New builds a Pacer for the given factor.
func New(factor int64, log vlog.Logger) *Pacer {
	if log == nil {
		log = vlog.Noop()
	}
	return &Pacer{factor: factor, log: log}
}

// Enabled reports whether this pacer will ever sleep.
func (p *Pacer) Enabled() bool { return p.factor > 0 }

// Wait sleeps proportionally to the gap between timestampNanos and the
// previous call's timestamp, honoring ctx cancellation. The first call
// never sleeps, since lastTimestamp starts at zero (spec.md §4.4, §8).
// A timestamp that regresses relative to the previous call logs a
// warning and does not sleep.
func (p *Pacer) Wait(ctx context.Context, timestampNanos int64) {
	if !p.Enabled() {
		return
	}
	defer func() { p.lastTimestamp = timestampNanos }()

	if p.lastTimestamp == 0 {
		return
	}
	if timestampNanos < p.lastTimestamp {
		p.log.Warnf("encountered non-monotonic packet timestamps: %d < %d", timestampNanos, p.lastTimestamp)
		return
	}

	delta := time.Duration(timestampNanos-p.lastTimestamp) / time.Duration(p.factor)
	if delta <= 0 {
		return
	}

	timer := time.NewTimer(delta)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
