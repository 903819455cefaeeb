package todo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/tasklist/internal/generation"
	"github.com/ent0n29/tasklist/internal/observability"
	"github.com/ent0n29/tasklist/internal/reliability"
)

var (
	// ErrBusy is returned when a generation request is already in flight.
	ErrBusy = errors.New("generation already in progress")
	// ErrNoInput is returned by Breakdown for blank input.
	ErrNoInput = errors.New("no task to break down")
	// ErrNoTasks is returned by Summarize for an empty list.
	ErrNoTasks = errors.New("no tasks to summarize")
	// ErrNoSession is returned when there is no signed-in user or store to
	// write sub-tasks to.
	ErrNoSession = errors.New("no signed-in user with a configured store")
)

// Status messages shown to the user.
const (
	StatusNeedInput       = "Please enter a task to break down."
	StatusBreakingDown    = "Generating sub-tasks..."
	StatusBreakdownFailed = "Could not generate sub-tasks. Please try again."
	StatusRequestFailed   = "An error occurred. Please try again."
	StatusNoTasks         = "There are no tasks to summarize."
	StatusSummarizing     = "Generating summary..."
	StatusSummarizeFailed = "Could not generate a summary. Please try again."
)

const (
	breakdownSystemPrompt = "You are an expert at project management. Your task is to take a high-level request and break it down into a concise, numbered list of specific, actionable sub-tasks. Do not provide any extra text or conversation, just the numbered list."

	generationKindBreakdown = "breakdown"
	generationKindSummarize = "summarize"
)

var ordinalPrefix = regexp.MustCompile(`^\d+\.\s*`)

// Fanout runs the two generation actions. Only one may be in flight; the
// guard is taken with compare-and-swap so overlapping calls fail fast.
type Fanout struct {
	client   generation.Client
	gateway  *Gateway
	metrics  *observability.Metrics
	onChange func()

	busy atomic.Bool

	mu     sync.Mutex
	status string
}

func NewFanout(client generation.Client, gateway *Gateway, metrics *observability.Metrics, onChange func()) *Fanout {
	return &Fanout{
		client:   client,
		gateway:  gateway,
		metrics:  metrics,
		onChange: onChange,
	}
}

func (f *Fanout) Generating() bool { return f.busy.Load() }

func (f *Fanout) Status() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Breakdown asks for sub-tasks of input and creates one task per returned
// line, in order. It returns nil only when every line was stored.
func (f *Fanout) Breakdown(ctx context.Context, input, ownerID string) error {
	if f.busy.Load() {
		return ErrBusy
	}
	taskText := strings.TrimSpace(input)
	if taskText == "" {
		f.setStatus(StatusNeedInput)
		return ErrNoInput
	}
	if ownerID == "" || !f.gateway.Ready() {
		f.setStatus(StatusRequestFailed)
		return ErrNoSession
	}
	if !f.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer f.release()
	f.setStatus(StatusBreakingDown)

	start := time.Now()
	text, err := f.generate(ctx, generation.Request{
		Prompt:            breakdownPrompt(taskText),
		SystemInstruction: breakdownSystemPrompt,
	})
	f.metrics.ObserveGeneration(generationKindBreakdown, resultLabel(err), time.Since(start))
	if err != nil {
		if errors.Is(err, generation.ErrEmptyResult) {
			f.setStatus(StatusBreakdownFailed)
		} else {
			logGenerationFailure(generationKindBreakdown, err)
			f.setStatus(StatusRequestFailed)
		}
		return err
	}

	for _, line := range splitSubtasks(text) {
		if err := f.createWithTimeout(ctx, line, ownerID); err != nil {
			f.setStatus(StatusRequestFailed)
			return fmt.Errorf("create sub-task: %w", err)
		}
	}
	f.setStatus("")
	return nil
}

// Summarize asks for a one-paragraph summary of tasks and shows it verbatim.
func (f *Fanout) Summarize(ctx context.Context, tasks []Task) error {
	if f.busy.Load() {
		return ErrBusy
	}
	if len(tasks) == 0 {
		f.setStatus(StatusNoTasks)
		return ErrNoTasks
	}
	if !f.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer f.release()
	f.setStatus(StatusSummarizing)

	start := time.Now()
	text, err := f.generate(ctx, generation.Request{Prompt: summaryPrompt(tasks)})
	f.metrics.ObserveGeneration(generationKindSummarize, resultLabel(err), time.Since(start))
	if err != nil {
		if errors.Is(err, generation.ErrEmptyResult) {
			f.setStatus(StatusSummarizeFailed)
		} else {
			logGenerationFailure(generationKindSummarize, err)
			f.setStatus(StatusRequestFailed)
		}
		return err
	}
	f.setStatus(text)
	return nil
}

// createWithTimeout bounds each sub-task write like the gateway's own writes,
// so a hung store cannot hold the guard.
func (f *Fanout) createWithTimeout(ctx context.Context, text, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, f.gateway.writeTimeout)
	defer cancel()
	return f.gateway.submitCreate(ctx, text, ownerID)
}

func (f *Fanout) generate(ctx context.Context, req generation.Request) (string, error) {
	if f.client == nil {
		return "", errors.New("generation client not configured")
	}
	return f.client.Generate(ctx, req)
}

func (f *Fanout) setStatus(s string) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
	f.notify()
}

func (f *Fanout) release() {
	f.busy.Store(false)
	f.notify()
}

func (f *Fanout) notify() {
	if f.onChange != nil {
		f.onChange()
	}
}

func breakdownPrompt(taskText string) string {
	return fmt.Sprintf("Break down the task \"%s\" into a list of specific, actionable sub-tasks.", taskText)
}

func summaryPrompt(tasks []Task) string {
	items := make([]string, 0, len(tasks))
	for _, t := range tasks {
		state := "not completed"
		if t.IsCompleted {
			state = "completed"
		}
		items = append(items, fmt.Sprintf("%s [%s]", t.Text, state))
	}
	return fmt.Sprintf(
		"Please provide a concise, single-paragraph summary of the following to-do list: %s. Mention the total number of tasks and how many are completed.",
		strings.Join(items, ", "),
	)
}

// splitSubtasks drops blank lines and leading "N." ordinals.
func splitSubtasks(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(ordinalPrefix.ReplaceAllString(line, ""))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// resultLabel is the metrics outcome of one generation call.
func resultLabel(err error) string {
	var statusErr *generation.StatusError
	switch {
	case err == nil:
		return reliability.OutcomeOK
	case errors.Is(err, generation.ErrEmptyResult):
		return "empty"
	case errors.As(err, &statusErr):
		return reliability.ClassifyHTTPStatus(statusErr.Code)
	default:
		return reliability.ClassifyError(err)
	}
}

func logGenerationFailure(kind string, err error) {
	entry := log.WithError(err).WithField("kind", kind).WithField("outcome", resultLabel(err))
	var statusErr *generation.StatusError
	if errors.As(err, &statusErr) {
		entry = entry.WithField("retryable", reliability.IsRetryableHTTPStatus(statusErr.Code))
	}
	entry.Error("error calling generation service")
}
