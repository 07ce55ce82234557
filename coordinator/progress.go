package coordinator

import (
	"math/rand"
	"sync"
	"time"

	"meshbot/config"
)

// ProgressReporter is the presentation capability the coordinator drives.
// The values it receives are synthetic: the remote protocol exposes no
// progress channel, so the bar exists for perceived responsiveness only.
type ProgressReporter interface {
	Start()
	// Tick carries a monotonically non-decreasing value in [0, 90] while
	// the request is outstanding.
	Tick(pct float64)
	// Complete is the terminal 100% update, sent on settlement whether
	// the request succeeded or failed.
	Complete()
	// Hide is sent after a short grace delay following Complete.
	Hide()
}

// NopProgress discards all updates.
type NopProgress struct{}

func (NopProgress) Start()        {}
func (NopProgress) Tick(float64)  {}
func (NopProgress) Complete()     {}
func (NopProgress) Hide()         {}

// progressDriver emits synthetic ticks until settled. Settle cancels the
// tick loop synchronously, so Complete always happens after the last Tick
// and before any further tick could fire.
type progressDriver struct {
	reporter ProgressReporter
	interval time.Duration
	grace    time.Duration

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func startProgress(reporter ProgressReporter, interval, grace time.Duration) *progressDriver {
	d := &progressDriver{
		reporter: reporter,
		interval: interval,
		grace:    grace,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	reporter.Start()
	reporter.Tick(0)
	go d.run()
	return d
}

func (d *progressDriver) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	pct := 0.0
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			pct += 3 + rand.Float64()*6
			if pct > config.ProgressCeiling {
				pct = config.ProgressCeiling
			}
			d.reporter.Tick(pct)
		}
	}
}

// settle stops the tick loop, waits for it to exit, then reports
// completion and schedules the hide.
func (d *progressDriver) settle() {
	d.once.Do(func() {
		close(d.stop)
		<-d.done
		d.reporter.Complete()
		time.AfterFunc(d.grace, d.reporter.Hide)
	})
}
