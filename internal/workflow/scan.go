package workflow

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// resumePoint is where a scan restarts a process.
type resumePoint struct {
	id    int64
	start int
	retry int64
}

// decide applies the restart rules to one incomplete record.
func (p *Processor) decide(rec Record, now time.Time) (resumePoint, bool) {
	o := rec.Options
	switch {
	case o.SleepUntil != nil:
		if !p.awake(rec, *o.SleepUntil, now) {
			return resumePoint{}, false
		}
		return resumePoint{id: rec.ID, start: rec.FunctionIdx}, true

	case o.RetryUntil != nil && !o.RetryUntil.IsTrue:
		if now.Before(o.RetryUntil.NextAt) {
			return resumePoint{}, false
		}
		return resumePoint{id: rec.ID, start: max(rec.FunctionIdx-1, 0), retry: o.RetryUntil.Count + 1}, true

	default:
		return resumePoint{id: rec.ID, start: rec.FunctionIdx}, true
	}
}

func (p *Processor) awake(rec Record, s Sleep, now time.Time) bool {
	if s.Predicate == "" {
		return !now.Before(s.Until)
	}
	pred, ok := p.cfg.Predicates[s.Predicate]
	if !ok {
		p.logger.Warn("unknown sleep predicate", "process", rec.ID, "predicate", s.Predicate)
		return false
	}
	return pred(newProcessContext(p.cfg.Base, rec, rec.FunctionIdx, 0, now))
}

// Scan resumes every incomplete process that is not running and is due,
// at most ScanConcurrency at a time, and waits for the runs to suspend.
// It returns how many processes were resumed. Step errors are logged.
func (p *Processor) Scan(ctx context.Context) int {
	now := p.cfg.Clock()

	var points []resumePoint
	for _, rec := range p.Records() {
		if rec.Complete || p.Active(rec.ID) {
			continue
		}
		if pt, ok := p.decide(rec, now); ok {
			points = append(points, pt)
		}
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.ScanConcurrency)
	resumed := make([]bool, len(points))
	for i, pt := range points {
		g.Go(func() error {
			ran, err := p.Resume(ctx, pt.id, pt.start, pt.retry)
			if err != nil {
				p.logStepError(pt.id, err)
			}
			resumed[i] = ran
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ran := range resumed {
		if ran {
			n++
		}
	}
	if n > 0 {
		p.logger.Debug("restart scan", "resumed", n)
	}
	return n
}

// Start scans once immediately, then every ScanInterval until ctx ends.
func (p *Processor) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.ScanInterval)
		defer ticker.Stop()
		for {
			p.Scan(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Wait blocks until the scan loop started by Start has exited.
func (p *Processor) Wait() { p.wg.Wait() }
