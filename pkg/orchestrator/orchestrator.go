// Package orchestrator drives the inference pipeline for stored messages:
// analyze, match, route, persist, and publish a completion event. Each run
// is idempotent; re-processing a message never duplicates work items.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/daylogger/daylog/config"
	dlerrors "github.com/daylogger/daylog/pkg/errors"
	"github.com/daylogger/daylog/pkg/logging"
	"github.com/daylogger/daylog/pkg/observability"
	"github.com/daylogger/daylog/pkg/queue"
	"github.com/daylogger/daylog/pkg/router"
	"github.com/daylogger/daylog/pkg/store"
	"github.com/daylogger/daylog/pkg/worklog"
)

// MessageStore is the subset of the message repository the pipeline needs.
type MessageStore interface {
	GetByID(ctx context.Context, id string) (*store.StoredMessage, error)
	SetState(ctx context.Context, id string, state store.MessageState, lastError string) error
	ListThread(ctx context.Context, userID string, source worklog.Source, sender string, before time.Time, limit int) ([]worklog.RawMessage, error)
}

// WorkItemStore persists routed work items.
type WorkItemStore interface {
	CreateIfAbsent(ctx context.Context, w *worklog.WorkItem) (bool, error)
}

// SuggestionStore retains extractions that routed to manual fallback.
type SuggestionStore interface {
	Save(ctx context.Context, userID string, e worklog.Extraction) error
}

// TicketSource supplies a user's cached tickets for matching.
type TicketSource interface {
	ListForUser(ctx context.Context, userID string) ([]worklog.Ticket, error)
}

// Analyzer extracts work descriptions from a message.
type Analyzer interface {
	Analyze(ctx context.Context, msg worklog.RawMessage, thread []worklog.RawMessage) ([]worklog.Extraction, error)
}

// TicketMatcher scores an extraction against a user's tickets.
type TicketMatcher interface {
	Match(ctx context.Context, e worklog.Extraction, tickets []worklog.Ticket) ([]worklog.TicketMatch, error)
}

const threadContextMessages = 10

// Orchestrator runs the pipeline end to end for one message at a time.
type Orchestrator struct {
	messages    MessageStore
	workItems   WorkItemStore
	suggestions SuggestionStore
	tickets     TicketSource
	analyzer    Analyzer
	matcher     TicketMatcher
	router      *router.Router
	sink        observability.EventSink
	metrics     *observability.PipelineMetrics
	tracer      *observability.Tracer
	policy      queue.RetryPolicy
	logger      logging.Logger

	// userLocks serializes the match step per user so concurrent runs
	// see a stable ticket snapshot.
	userLocks sync.Map

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Messages    MessageStore
	WorkItems   WorkItemStore
	Suggestions SuggestionStore
	Tickets     TicketSource
	Analyzer    Analyzer
	Matcher     TicketMatcher
	Router      *router.Router
	Sink        observability.EventSink
	Metrics     *observability.PipelineMetrics
	Logger      logging.Logger
}

// New creates an Orchestrator.
func New(deps Deps, retry config.RetryConfig) *Orchestrator {
	sink := deps.Sink
	if sink == nil {
		sink = observability.NopEventSink{}
	}
	return &Orchestrator{
		messages:    deps.Messages,
		workItems:   deps.WorkItems,
		suggestions: deps.Suggestions,
		tickets:     deps.Tickets,
		analyzer:    deps.Analyzer,
		matcher:     deps.Matcher,
		router:      deps.Router,
		sink:        sink,
		metrics:     deps.Metrics,
		tracer:      observability.NewTracer(),
		policy:      queue.PolicyFromConfig(retry),
		logger:      deps.Logger.With(logging.F("component", "orchestrator")),
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessMessage runs the pipeline for one stored message, retrying
// retryable failures with exponential backoff. It always returns the
// completion event it published, including failed outcomes. Re-running a
// completed message yields the same work items by dedup key.
func (o *Orchestrator) ProcessMessage(ctx context.Context, messageID string) (*worklog.CompletionEvent, error) {
	sm, err := o.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, dlerrors.Classify(err, "load")
	}
	if sm.State == store.MessageCancelled {
		return nil, dlerrors.NewPipelineError(dlerrors.CodeCancelled, "load",
			"message cancelled", dlerrors.ErrCancelled)
	}

	ctx, span := o.tracer.StartMessageSpan(ctx, sm.UserID, sm.ID, string(sm.Source))
	defer span.End()
	helper := observability.NewSpanHelper(span)

	if err := o.messages.SetState(ctx, sm.ID, store.MessageProcessing, ""); err != nil {
		o.logger.Warn("failed to mark message processing",
			logging.F("message_id", sm.ID), logging.Err(err))
	}

	for attempt := 0; ; attempt++ {
		event, err := o.runOnce(ctx, sm)
		if err == nil {
			helper.SetSuccess()
			o.finish(ctx, sm, event, "")
			return event, nil
		}

		pe := dlerrors.Classify(err, "pipeline")

		decision := o.policy.DecideRetry(pe, attempt+1)
		if !decision.ShouldRetry {
			helper.SetError(pe, string(pe.Code), false)
			event := o.failedEvent(sm, pe)
			o.finish(ctx, sm, event, pe.Error())
			return event, pe
		}

		if o.metrics != nil {
			o.metrics.RecordRetry(pe.Stage, string(pe.Code))
		}
		o.logger.Warn("pipeline run failed, retrying",
			logging.F("message_id", sm.ID),
			logging.F("attempt", attempt+1),
			logging.F("backoff", decision.BackoffDuration.String()),
			logging.Err(pe))

		if err := o.sleep(ctx, decision.BackoffDuration); err != nil {
			pe := dlerrors.Classify(err, "pipeline")
			event := o.failedEvent(sm, pe)
			o.finish(ctx, sm, event, pe.Error())
			return event, pe
		}
	}
}

// runOnce executes one pipeline attempt. It persists nothing until routing
// has succeeded for every extraction, and checks for cancellation before
// committing, so an interrupted attempt leaves no partial state.
func (o *Orchestrator) runOnce(ctx context.Context, sm *store.StoredMessage) (*worklog.CompletionEvent, error) {
	thread, err := o.messages.ListThread(ctx, sm.UserID, sm.Source, sm.Sender, sm.Timestamp, threadContextMessages)
	if err != nil {
		// Context is an enhancement; analysis proceeds without it.
		o.logger.Warn("failed to load thread context",
			logging.F("message_id", sm.ID), logging.Err(err))
		thread = nil
	}

	start := o.now()
	actx, aspan := o.tracer.StartStageSpan(ctx, "analyze")
	extractions, err := o.analyzer.Analyze(actx, sm.RawMessage, thread)
	aspan.End()
	if err != nil {
		return nil, err
	}
	o.recordStage("analyze", start)

	tickets := o.loadTickets(ctx, sm.UserID)

	type routed struct {
		extraction worklog.Extraction
		decision   router.Decision
	}
	decisions := make([]routed, 0, len(extractions))

	start = o.now()
	mctx, mspan := o.tracer.StartStageSpan(ctx, "match")
	mh := observability.NewSpanHelper(mspan)
	unlock := o.lockUser(sm.UserID)
	for _, e := range extractions {
		matches, err := o.matcher.Match(mctx, e, tickets)
		if err != nil {
			unlock()
			mspan.End()
			return nil, err
		}
		var selected *worklog.TicketMatch
		for i := range matches {
			if matches[i].Selected {
				selected = &matches[i]
				break
			}
		}
		d := o.router.Classify(e, selected)
		mh.SetRouting(e.Ordinal, string(d.Tier), e.Confidence)
		if d.TicketKey != nil {
			mh.SetTicket(*d.TicketKey)
		}
		if o.metrics != nil {
			o.metrics.RecordRouting(string(d.Tier))
		}
		decisions = append(decisions, routed{extraction: e, decision: d})
	}
	unlock()
	mspan.End()
	o.recordStage("match", start)

	// Nothing is written past this point if the run has been cancelled,
	// by the context or by the message itself: the source may have been
	// withdrawn while analysis was in flight, so the state is re-read
	// here and the run's results discarded if it was.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cur, err := o.messages.GetByID(ctx, sm.ID); err != nil {
		o.logger.Warn("failed to re-check message state before persist",
			logging.F("message_id", sm.ID), logging.Err(err))
	} else if cur.State == store.MessageCancelled {
		return nil, dlerrors.NewPipelineError(dlerrors.CodeCancelled, "persist",
			"message cancelled mid-flight", dlerrors.ErrCancelled)
	}

	start = o.now()
	event := &worklog.CompletionEvent{
		MessageID:   sm.ID,
		SourceID:    sm.SourceID,
		UserID:      sm.UserID,
		Outcome:     worklog.OutcomeApproved,
		CompletedAt: o.now().UTC(),
	}

	sawReview := false
	sawItem := false
	sawFallback := false
	for _, r := range decisions {
		switch r.decision.Tier {
		case router.TierManualFallback:
			if err := o.suggestions.Save(ctx, sm.UserID, r.extraction); err != nil {
				return nil, dlerrors.NewPipelineError(dlerrors.CodePersistence, "persist", "saving suggestion", err)
			}
			sawFallback = true
			if o.metrics != nil && r.extraction.Fallback {
				o.metrics.RecordFallback(string(sm.Source))
			}
		default:
			item := o.buildWorkItem(sm, r.extraction, r.decision)
			if _, err := o.workItems.CreateIfAbsent(ctx, item); err != nil {
				return nil, dlerrors.NewPipelineError(dlerrors.CodePersistence, "persist", "creating work item", err)
			}
			event.WorkItemIDs = append(event.WorkItemIDs, item.ID)
			sawItem = true
			if r.decision.NeedsReview {
				sawReview = true
			}
			if o.metrics != nil {
				o.metrics.RecordExtraction(string(sm.Source), r.extraction.Confidence)
			}
		}
	}
	o.recordStage("persist", start)

	switch {
	case sawReview:
		event.Outcome = worklog.OutcomeReview
	case sawItem:
		event.Outcome = worklog.OutcomeApproved
	case sawFallback:
		event.Outcome = worklog.OutcomeFallback
	}
	return event, nil
}

// buildWorkItem derives the persisted work item for a routed extraction.
func (o *Orchestrator) buildWorkItem(sm *store.StoredMessage, e worklog.Extraction, d router.Decision) *worklog.WorkItem {
	estimated := 0
	if e.EstimatedMinutes != nil {
		estimated = *e.EstimatedMinutes
	}
	priority := e.Priority
	if priority == "" {
		priority = worklog.PriorityMedium
	}
	return &worklog.WorkItem{
		ID:               uuid.NewString(),
		UserID:           sm.UserID,
		DedupKey:         e.DedupKey(),
		Description:      e.Description,
		Category:         e.Category,
		Priority:         priority,
		EstimatedMinutes: estimated,
		Confidence:       e.Confidence,
		Status:           worklog.StatusPending,
		NeedsReview:      d.NeedsReview,
		Tags:             e.Keywords,
		TicketKey:        d.TicketKey,
		MessageID:        sm.ID,
	}
}

func (o *Orchestrator) loadTickets(ctx context.Context, userID string) []worklog.Ticket {
	tickets, err := o.tickets.ListForUser(ctx, userID)
	if err != nil {
		// Matching degrades to no candidates rather than failing the run.
		o.logger.Warn("failed to load ticket cache",
			logging.F("user_id", userID), logging.Err(err))
		return nil
	}
	return tickets
}

func (o *Orchestrator) lockUser(userID string) func() {
	v, _ := o.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (o *Orchestrator) failedEvent(sm *store.StoredMessage, err error) *worklog.CompletionEvent {
	return &worklog.CompletionEvent{
		MessageID:   sm.ID,
		SourceID:    sm.SourceID,
		UserID:      sm.UserID,
		Outcome:     worklog.OutcomeFailed,
		Error:       err.Error(),
		CompletedAt: o.now().UTC(),
	}
}

// finish records the terminal state and publishes the completion event.
// Publish failures are logged, never fatal: the store is the source of
// truth and the event is advisory.
func (o *Orchestrator) finish(ctx context.Context, sm *store.StoredMessage, event *worklog.CompletionEvent, lastError string) {
	state := store.MessageCompleted
	if event.Outcome == worklog.OutcomeFailed {
		state = store.MessageFailed
	}
	// State and event still need recording when ctx was cancelled.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	// A message cancelled mid-run keeps its cancelled state; the store
	// refuses the transition and that refusal is expected here.
	if err := o.messages.SetState(finishCtx, sm.ID, state, lastError); err != nil && !dlerrors.IsCancelled(err) {
		o.logger.Error("failed to record message state",
			logging.F("message_id", sm.ID),
			logging.F("state", string(state)),
			logging.Err(err))
	}
	if err := o.sink.Publish(finishCtx, *event); err != nil {
		o.logger.Warn("failed to publish completion event",
			logging.F("message_id", sm.ID), logging.Err(err))
	}
	if o.metrics != nil {
		o.metrics.RecordOutcome(string(sm.Source), string(event.Outcome))
	}
	o.logger.Info("message processed",
		logging.F("message_id", sm.ID),
		logging.F("outcome", string(event.Outcome)),
		logging.F("work_items", len(event.WorkItemIDs)),
		logging.F("trace_id", observability.GetTraceID(ctx)))
}

func (o *Orchestrator) recordStage(stage string, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordStage(stage, o.now().Sub(start).Seconds())
	}
}

// ProcessBatch runs the pipeline for several messages with bounded
// concurrency. A failed message does not stop the others; the first error
// is returned after all runs finish.
func (o *Orchestrator) ProcessBatch(ctx context.Context, messageIDs []string, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 4
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, id := range messageIDs {
		id := id
		g.Go(func() error {
			if _, err := o.ProcessMessage(ctx, id); err != nil {
				return fmt.Errorf("message %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
