package pruner

import (
	"log/slog"
)

// Progress receives the state of a running prune. Calls are serialized by
// the Pruner but may come from any goroutine.
type Progress interface {
	SetMaximum(max int)
	SetMinimum(min int)
	Increment(n int)
	SetValue(v int)
	SetIndeterminate(indeterminate bool)
	SetMessage(msg string)
	Done()
}

// LogProgress reports progress through a logger, once per message and then
// every time the completed share crosses another step.
type LogProgress struct {
	log  *slog.Logger
	step int // percent

	min, max, value int
	indeterminate   bool
	msg             string
	lastPct         int
}

// NewLogProgress returns a LogProgress logging every step percent.
func NewLogProgress(log *slog.Logger, step int) *LogProgress {
	return &LogProgress{log: log, step: max(step, 1), lastPct: -1}
}

func (p *LogProgress) SetMaximum(v int) { p.max = v }
func (p *LogProgress) SetMinimum(v int) { p.min = v }

func (p *LogProgress) Increment(n int) {
	p.value += n
	p.report()
}

func (p *LogProgress) SetValue(v int) {
	p.value = v
	p.lastPct = -1
}

func (p *LogProgress) SetIndeterminate(v bool) { p.indeterminate = v }

func (p *LogProgress) SetMessage(msg string) {
	p.msg = msg
	p.lastPct = -1
	if p.indeterminate {
		p.log.Info(msg)
	}
}

func (p *LogProgress) Done() {
	p.value = p.max
	p.indeterminate = false
	p.log.Info("done")
}

func (p *LogProgress) report() {
	if p.indeterminate || p.max <= p.min {
		return
	}
	pct := (p.value - p.min) * 100 / (p.max - p.min)
	if p.lastPct >= 0 && pct < 100 && pct/p.step == p.lastPct/p.step {
		return
	}
	p.lastPct = pct
	p.log.Info(p.msg, "done", p.value-p.min, "total", p.max-p.min, "percent", pct)
}

// Percent returns the completed share of the current phase.
func (p *LogProgress) Percent() int {
	if p.max <= p.min {
		return 0
	}
	return (p.value - p.min) * 100 / (p.max - p.min)
}

type nopProgress struct{}

func (nopProgress) SetMaximum(int)        {}
func (nopProgress) SetMinimum(int)        {}
func (nopProgress) Increment(int)         {}
func (nopProgress) SetValue(int)          {}
func (nopProgress) SetIndeterminate(bool) {}
func (nopProgress) SetMessage(string)     {}
func (nopProgress) Done()                 {}
