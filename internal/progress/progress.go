package progress

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
)

// Tracker reports per-file progress for one phase (loading, resolving,
// patching). A hidden Tracker still counts but draws nothing.
type Tracker struct {
	bar     *progressbar.ProgressBar
	w       io.Writer
	label   string
	visible bool
	ticks   atomic.Int64
}

// NewTracker creates a progress bar on w with the given label and total
// count. A negative total draws a spinner.
func NewTracker(w io.Writer, label string, total int, visible bool) *Tracker {
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetVisibility(visible),
		progressbar.OptionClearOnFinish(),
	}
	if total < 0 {
		opts = append(opts,
			progressbar.OptionSetWidth(20),
			progressbar.OptionSpinnerType(14),
		)
	} else {
		opts = append(opts,
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionSetElapsedTime(false),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	return &Tracker{bar: progressbar.NewOptions(total, opts...), w: w, label: label, visible: visible}
}

// Tick increments the progress by 1. Safe for concurrent use.
func (t *Tracker) Tick() {
	t.ticks.Add(1)
	_ = t.bar.Add(1)
}

// Count returns how many ticks were recorded.
func (t *Tracker) Count() int64 {
	return t.ticks.Load()
}

// Finish clears the bar.
func (t *Tracker) Finish() {
	if !t.visible {
		return
	}
	_ = t.bar.Finish()
	_ = t.bar.Clear()
}

// FinishError clears the bar and reports err on the tracker's writer.
func (t *Tracker) FinishError(err error) {
	t.Finish()
	fmt.Fprintf(t.w, "  %s error: %v\n", t.label, err)
}
