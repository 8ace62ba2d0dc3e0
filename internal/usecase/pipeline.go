package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/filter"
	"ContentDigest/internal/ports"
)

const defaultNotifyTimeout = 10 * time.Second

// Phase names one step of a pipeline run.
type Phase string

const (
	PhaseInit         Phase = "init"
	PhaseCollecting   Phase = "collecting"
	PhaseFiltering    Phase = "filtering"
	PhaseSynthesizing Phase = "synthesizing"
	PhasePersisting   Phase = "persisting"
	PhaseDistributing Phase = "distributing"
	PhaseNotifying    Phase = "notifying"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

var (
	ErrCollection  = errors.New("every source key failed")
	ErrSynthesis   = errors.New("synthesis failed")
	ErrPersistence = errors.New("persistence failed")
)

// PhaseError wraps a fatal error with the phase that produced it.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return string(e.Phase) + ": " + e.Err.Error()
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// OutcomeStatus is the terminal result of a run.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeNoContent OutcomeStatus = "no_content"
	OutcomeFailed    OutcomeStatus = "failed"
)

// KeyFailure records one source key that contributed nothing.
type KeyFailure struct {
	SourceType domain.SourceType
	Key        string
	Err        error
}

// Outcome summarizes one run.
type Outcome struct {
	Status       OutcomeStatus
	Phase        Phase
	DigestID     string
	Collected    int
	Retained     int
	FromCache    int
	SourceCounts map[domain.SourceType]int
	FailedKeys   []KeyFailure
	Distribution []domain.DistributionResult
	Err          error
}

// Source binds a collector and its cache to the keys monitored for one source type.
type Source struct {
	Collector ports.Collector
	Cache     ports.CacheGateway
	Keys      []string
	MaxItems  int
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Name              string
	EstimatedDuration time.Duration
	Config            domain.PipelineRunConfig
	Sources           map[domain.SourceType]Source
	Synthesizer       ports.Synthesizer
	Repository        ports.DigestRepository
	Distributors      []ports.Distributor
	Notifier          ports.Notifier
	NotifyTimeout     time.Duration
	Logger            *slog.Logger
	Now               func() time.Time
}

// Pipeline runs one collection → synthesis → distribution cycle.
type Pipeline struct {
	name          string
	estimated     time.Duration
	config        domain.PipelineRunConfig
	sources       map[domain.SourceType]Source
	synthesizer   ports.Synthesizer
	repository    ports.DigestRepository
	distributors  []ports.Distributor
	notifier      ports.Notifier
	notifyTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

var _ ports.Task = (*Pipeline)(nil)

// NewPipeline constructs the orchestration component. The run config is copied.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		name:          deps.Name,
		estimated:     deps.EstimatedDuration,
		config:        deps.Config.Clone(),
		sources:       deps.Sources,
		synthesizer:   deps.Synthesizer,
		repository:    deps.Repository,
		distributors:  deps.Distributors,
		notifier:      deps.Notifier,
		notifyTimeout: deps.NotifyTimeout,
		logger:        deps.Logger,
		now:           deps.Now,
	}
	if p.notifyTimeout <= 0 {
		p.notifyTimeout = defaultNotifyTimeout
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	p.logger = p.logger.With("pipeline", p.name)
	return p
}

// Name labels the pipeline in logs and notices.
func (p *Pipeline) Name() string { return p.name }

// EstimatedDuration is informational only.
func (p *Pipeline) EstimatedDuration() time.Duration { return p.estimated }

// Execute runs the pipeline and reports only fatal failures.
func (p *Pipeline) Execute(ctx context.Context) error {
	_, err := p.Run(ctx)
	return err
}

// Run executes every phase in order. The returned error is non-nil only when
// every attempted source key failed, or synthesis or persistence failed.
// Individual key failures are recorded in the outcome and never abort the run.
func (p *Pipeline) Run(ctx context.Context) (Outcome, error) {
	started := p.now()
	out := Outcome{Phase: PhaseInit, SourceCounts: map[domain.SourceType]int{}}
	p.logger.Info("pipeline run started", "analysis_type", p.config.AnalysisType)

	out.Phase = PhaseCollecting
	items, attempted := p.collect(ctx, &out)
	out.Collected = len(items)
	if attempted > 0 && len(out.FailedKeys) == attempted {
		return p.fail(ctx, out, PhaseCollecting, fmt.Errorf("%w: %d keys", ErrCollection, attempted))
	}
	if len(items) == 0 {
		return p.noContent(ctx, out, "no items collected")
	}

	out.Phase = PhaseFiltering
	kept, dropped := filter.Partition(items, filter.Criteria{
		MinQuality: p.config.MinQuality,
		MaxAge:     p.config.MaxContentAge,
	}, p.now())
	out.Retained = len(kept)
	p.logFiltered(len(items), dropped)
	if len(kept) == 0 {
		return p.noContent(ctx, out, "no items passed the quality and age filter")
	}

	out.Phase = PhaseSynthesizing
	input := p.synthesisInput(kept)
	for t, group := range input.Groups {
		out.SourceCounts[t] = len(group)
	}
	if p.synthesizer == nil {
		return p.fail(ctx, out, PhaseSynthesizing, fmt.Errorf("%w: no synthesizer configured", ErrSynthesis))
	}
	result, err := p.synthesizer.Analyze(ctx, input)
	if err != nil {
		return p.fail(ctx, out, PhaseSynthesizing, fmt.Errorf("%w: %w", ErrSynthesis, err))
	}

	out.Phase = PhasePersisting
	digest := domain.Digest{
		Title:        result.Title,
		Summary:      result.Summary,
		Content:      result.Content,
		AIModel:      result.Model,
		AnalysisType: input.AnalysisType,
		WindowStart:  input.WindowStart,
		WindowEnd:    input.WindowEnd,
		ItemCount:    input.ItemCount(),
		SourceCounts: out.SourceCounts,
		TokensUsed:   result.Usage.TotalTokens,
		CostUSD:      result.Usage.CostUSD,
	}
	id, err := p.repository.Insert(ctx, digest)
	if err != nil {
		return p.fail(ctx, out, PhasePersisting, fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	digest.ID = id
	out.DigestID = id
	p.logger.Info("digest persisted", "digest_id", id, "items", digest.ItemCount, "tokens", digest.TokensUsed)

	out.Phase = PhaseDistributing
	out.Distribution = p.distribute(ctx, digest)

	out.Phase = PhaseNotifying
	p.safeNotify(ctx, domain.Notice{
		Kind:     domain.NoticeCompleted,
		Pipeline: p.name,
		DigestID: id,
		Items:    digest.ItemCount,
		Message:  digest.Title,
	})

	out.Phase = PhaseDone
	out.Status = OutcomeCompleted
	p.logger.Info("pipeline run completed",
		"digest_id", id,
		"collected", out.Collected,
		"retained", out.Retained,
		"failed_keys", len(out.FailedKeys),
		"duration", p.now().Sub(started).String(),
	)
	return out, nil
}

// collect gathers items from every enabled source type and reports how many keys were attempted.
func (p *Pipeline) collect(ctx context.Context, out *Outcome) ([]domain.ContentItem, int) {
	var (
		items     []domain.ContentItem
		attempted int
	)
	for _, t := range domain.SourceTypes {
		if !p.config.Enabled(t) {
			continue
		}
		src, ok := p.sources[t]
		if !ok || src.Collector == nil {
			p.logger.Warn("source type enabled without collector", "source_type", t)
			continue
		}
		attempted += len(src.Keys)
		collected, failures, fromCache := p.collectType(ctx, t, src)
		items = append(items, collected...)
		out.FailedKeys = append(out.FailedKeys, failures...)
		out.FromCache += fromCache
	}

	return items, attempted
}

// collectType gathers every key of one source type. Keys run in parallel up to
// CollectConcurrency, results keep the configured key order.
func (p *Pipeline) collectType(ctx context.Context, t domain.SourceType, src Source) ([]domain.ContentItem, []KeyFailure, int) {
	results := make([][]domain.ContentItem, len(src.Keys))
	cached := make([]bool, len(src.Keys))

	var (
		mu       sync.Mutex
		failures []KeyFailure
		g        errgroup.Group
	)
	limit := p.config.CollectConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, key := range src.Keys {
		g.Go(func() error {
			items, fromCache, err := p.collectKey(ctx, t, src, key)
			if err != nil {
				p.logger.Warn("source key failed, skipping", "source_type", t, "key", key, "error", err)
				mu.Lock()
				failures = append(failures, KeyFailure{SourceType: t, Key: key, Err: err})
				mu.Unlock()
				return nil
			}
			results[i] = items
			cached[i] = fromCache
			return nil
		})
	}
	// Workers never return an error; failures are collected above.
	_ = g.Wait()

	var (
		items     []domain.ContentItem
		fromCache int
	)
	for i, r := range results {
		items = append(items, r...)
		if cached[i] {
			fromCache++
		}
	}
	p.logger.Info("source type collected", "source_type", t, "keys", len(src.Keys), "items", len(items), "failed", len(failures))
	return items, failures, fromCache
}

// collectKey serves one key from cache when fresh, otherwise fetches and writes back.
// Cache problems degrade to a fetch; only collector failures and panics fail the key.
func (p *Pipeline) collectKey(ctx context.Context, t domain.SourceType, src Source, key string) (items []domain.ContentItem, fromCache bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			items, fromCache, err = nil, false, fmt.Errorf("collector panicked: %v", rec)
		}
	}()

	if src.Cache != nil {
		fresh, err := src.Cache.IsFresh(ctx, key)
		if err != nil {
			p.logger.Warn("cache freshness check failed", "source_type", t, "key", key, "error", err)
		}
		if fresh {
			cachedItems, err := src.Cache.Read(ctx, key)
			if err == nil {
				return cachedItems, true, nil
			}
			p.logger.Warn("cache read failed, fetching", "source_type", t, "key", key, "error", err)
		}
	}

	limits := domain.FetchLimits{MaxItems: src.MaxItems}
	if p.config.MaxContentAge > 0 {
		limits.Since = p.now().Add(-p.config.MaxContentAge)
	}
	fetched, err := src.Collector.Fetch(ctx, key, limits)
	if err != nil {
		return nil, false, err
	}
	for i := range fetched {
		if fetched[i].SourceType == "" {
			fetched[i].SourceType = t
		}
		if fetched[i].SourceKey == "" {
			fetched[i].SourceKey = key
		}
	}

	if src.Cache != nil {
		if err := src.Cache.Write(ctx, key, fetched); err != nil {
			p.logger.Warn("cache write failed", "source_type", t, "key", key, "error", err)
		}
	}
	return fetched, false, nil
}

func (p *Pipeline) logFiltered(total int, dropped []filter.Excluded) {
	byReason := map[filter.Reason]int{}
	for _, ex := range dropped {
		byReason[ex.Reason]++
	}
	p.logger.Info("items filtered",
		"total", total,
		"retained", total-len(dropped),
		"low_quality", byReason[filter.ReasonQuality],
		"too_old", byReason[filter.ReasonAge],
	)
}

func (p *Pipeline) synthesisInput(items []domain.ContentItem) domain.SynthesisInput {
	input := domain.SynthesisInput{
		AnalysisType: p.config.AnalysisType,
		Groups:       map[domain.SourceType][]domain.ContentItem{},
	}
	for _, it := range items {
		input.Groups[it.SourceType] = append(input.Groups[it.SourceType], it)
		if input.WindowStart.IsZero() || it.Timestamp.Before(input.WindowStart) {
			input.WindowStart = it.Timestamp
		}
		if it.Timestamp.After(input.WindowEnd) {
			input.WindowEnd = it.Timestamp
		}
	}
	return input
}

// distribute sends the digest to each enabled channel, social first.
// Status is recorded only for channels that succeeded.
func (p *Pipeline) distribute(ctx context.Context, digest domain.Digest) []domain.DistributionResult {
	view := digest.View()
	var results []domain.DistributionResult

	for _, ch := range []domain.Channel{domain.ChannelSocial, domain.ChannelChatOps} {
		if !p.channelEnabled(ch) {
			continue
		}
		for _, d := range p.distributors {
			if d.Channel() != ch {
				continue
			}
			res := p.safeSend(ctx, d, view)
			results = append(results, res)
			if !res.Success {
				p.logger.Warn("distribution failed", "channel", ch, "digest_id", digest.ID, "error", res.Err)
				continue
			}
			p.logger.Info("digest distributed", "channel", ch, "digest_id", digest.ID, "url", res.URL)

			if err := p.repository.Update(ctx, digest.ID, statusUpdate(res)); err != nil {
				p.logger.Warn("distribution status update failed", "channel", ch, "digest_id", digest.ID, "error", err)
			}
		}
	}
	return results
}

func (p *Pipeline) channelEnabled(ch domain.Channel) bool {
	switch ch {
	case domain.ChannelSocial:
		return p.config.DistributeSocial
	case domain.ChannelChatOps:
		return p.config.DistributeChatOps
	}
	return false
}

func (p *Pipeline) safeSend(ctx context.Context, d ports.Distributor, view domain.DigestView) (res domain.DistributionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = domain.DistributionResult{Channel: d.Channel(), Err: fmt.Errorf("distributor panicked: %v", rec)}
		}
	}()
	res = d.Send(ctx, view)
	res.Channel = d.Channel()
	return res
}

func statusUpdate(res domain.DistributionResult) domain.DigestUpdate {
	ok := true
	switch res.Channel {
	case domain.ChannelSocial:
		url := res.URL
		return domain.DigestUpdate{PostedToSocial: &ok, SocialURL: &url}
	case domain.ChannelChatOps:
		return domain.DigestUpdate{SentToChatOps: &ok}
	}
	return domain.DigestUpdate{}
}

func (p *Pipeline) noContent(ctx context.Context, out Outcome, reason string) (Outcome, error) {
	p.logger.Info("pipeline finished without content", "reason", reason, "failed_keys", len(out.FailedKeys))
	out.Phase = PhaseNotifying
	p.safeNotify(ctx, domain.Notice{
		Kind:     domain.NoticeNoContent,
		Pipeline: p.name,
		Items:    out.Retained,
		Message:  reason,
	})
	out.Phase = PhaseDone
	out.Status = OutcomeNoContent
	return out, nil
}

func (p *Pipeline) fail(ctx context.Context, out Outcome, phase Phase, err error) (Outcome, error) {
	perr := &PhaseError{Phase: phase, Err: err}
	p.logger.Error("pipeline run failed", "phase", phase, "error", err)
	p.safeNotify(ctx, domain.Notice{
		Kind:     domain.NoticeFailed,
		Pipeline: p.name,
		Message:  string(phase),
		Err:      err,
	})
	out.Phase = PhaseFailed
	out.Status = OutcomeFailed
	out.Err = perr
	return out, perr
}

// safeNotify sends the notice on its own goroutine and waits at most
// notifyTimeout. The result never reaches the caller.
func (p *Pipeline) safeNotify(ctx context.Context, notice domain.Notice) {
	if p.notifier == nil {
		return
	}

	nctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("notifier panicked: %v", rec)
			}
		}()
		done <- p.notifier.Notify(nctx, notice)
	}()

	timer := time.NewTimer(p.notifyTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			p.logger.Warn("notification failed", "kind", notice.Kind, "error", err)
		}
	case <-timer.C:
		p.logger.Warn("notification timed out", "kind", notice.Kind, "timeout", p.notifyTimeout.String())
	}
}
