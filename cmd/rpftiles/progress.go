package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/vbauerster/mpb/v6"
	"github.com/vbauerster/mpb/v6/decor"

	"github.com/arkilian/rpftiles/internal/builder"
)

type phaseBar struct {
	bar    *mpb.Bar
	failed atomic.Int64
}

// progressListener renders one bar per builder phase.
type progressListener struct {
	progress *mpb.Progress

	mu     sync.Mutex
	phases map[builder.Phase]*phaseBar
}

func newProgressListener(w io.Writer) *progressListener {
	return &progressListener{
		progress: mpb.New(mpb.WithOutput(w), mpb.WithWidth(48)),
		phases:   make(map[builder.Phase]*phaseBar),
	}
}

func progressOrNil(p *progressListener) builder.Listener {
	if p == nil {
		return nil
	}
	return p
}

// OnEvent implements builder.Listener.
func (p *progressListener) OnEvent(e builder.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Kind {
	case builder.StepCount:
		pb := &phaseBar{}
		pb.bar = p.progress.AddBar(int64(e.Total),
			mpb.PrependDecorators(
				decor.Name(string(e.Phase), decor.WC{W: 8, C: decor.DidentRight}),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Percentage(decor.WC{W: 5}),
				// decorators run on the bar goroutine; read the counter only
				decor.Any(func(decor.Statistics) string {
					if n := pb.failed.Load(); n > 0 {
						return fmt.Sprintf(" %d failed", n)
					}
					return ""
				}),
			),
		)
		p.phases[e.Phase] = pb
	case builder.StepComplete, builder.StepFailed:
		pb, ok := p.phases[e.Phase]
		if !ok {
			return
		}
		if e.Kind == builder.StepFailed {
			pb.failed.Add(1)
		}
		pb.bar.Increment()
	case builder.PhaseEnd:
		if pb, ok := p.phases[e.Phase]; ok && !pb.bar.Completed() {
			// skipped steps never report; close the bar where it is
			pb.bar.SetTotal(-1, true)
		}
	}
}

// Wait flushes the bars. Bars of a failed build stay where they stopped.
func (p *progressListener) Wait(aborted bool) {
	p.mu.Lock()
	for _, pb := range p.phases {
		if pb.bar.Completed() {
			continue
		}
		if aborted {
			pb.bar.Abort(false)
		} else {
			pb.bar.SetTotal(-1, true)
		}
	}
	p.mu.Unlock()
	p.progress.Wait()
}
