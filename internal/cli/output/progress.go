package output

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/assetpipe/internal/pipeline"
)

// TaskReporter prints task progress lines and failure notifications.
type TaskReporter struct {
	r   *Renderer
	now func() time.Time
}

var _ pipeline.Reporter = (*TaskReporter)(nil)

// NewTaskReporter creates a reporter writing through r.
func NewTaskReporter(r *Renderer) *TaskReporter {
	return &TaskReporter{r: r, now: time.Now}
}

func (p *TaskReporter) stamp() string {
	return p.r.styles.Muted.Render("[" + p.now().Format("15:04:05") + "]")
}

// TaskStarted prints the start line of a task.
func (p *TaskReporter) TaskStarted(name string) {
	p.r.Println(fmt.Sprintf("%s Starting '%s'...", p.stamp(), p.r.styles.Task.Render(name)))
}

// TaskFinished prints the outcome of a task. Failures also raise a notification.
func (p *TaskReporter) TaskFinished(res pipeline.TaskResult) {
	name := p.r.styles.Task.Render(res.Name)
	switch res.Status {
	case pipeline.StatusSuccess:
		p.r.Println(fmt.Sprintf("%s Finished '%s' after %s", p.stamp(), name, FormatDuration(res.Duration)))
	case pipeline.StatusSkipped:
		p.r.Println(fmt.Sprintf("%s Skipped '%s'", p.stamp(), name))
	case pipeline.StatusFailed:
		p.r.Println(fmt.Sprintf("%s '%s' errored after %s", p.stamp(), name, FormatDuration(res.Duration)))
		msg := ""
		if res.Err != nil {
			msg = res.Err.Error()
		}
		p.r.Notify(fmt.Sprintf("Error running task %s", res.Name), msg)
	}
}

// FormatDuration prints durations the way build logs usually do.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%d μs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%d ms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2f s", d.Seconds())
	}
}
