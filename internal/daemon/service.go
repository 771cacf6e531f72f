// Package daemon orchestrates the usage providers: it fronts each one with
// response caches, collapses concurrent fetches and runs the poll loop.
package daemon

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/janekbaraniewski/usagebar/internal/cache"
	"github.com/janekbaraniewski/usagebar/internal/core"
)

type providerSlot struct {
	provider core.UsageProvider
	usage    *cache.ResponseCache[core.UsageSnapshot]
	tier     *cache.ResponseCache[core.TierInfo]

	// gen is bumped whenever the caches are dropped; a fetch that started
	// under an older generation does not write its result back.
	mu  sync.Mutex
	gen uint64
}

func (p *providerSlot) generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *providerSlot) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.usage.Clear()
	p.tier.Clear()
}

// store caches snap unless the slot was reset after gen was taken.
func (p *providerSlot) store(gen uint64, snap core.UsageSnapshot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return false
	}
	p.usage.Set(snap)
	p.tier.Set(snap.Tier)
	return true
}

type Service struct {
	cfg Config

	order []string
	slots map[string]*providerSlot

	group    singleflight.Group
	recorder Recorder

	logMu     sync.Mutex
	lastLogAt map[string]time.Time
	now       func() time.Time
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock sets the clock used by the response caches and log throttling.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, providers []core.UsageProvider, opts ...Option) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.UsageTTL <= 0 {
		cfg.UsageTTL = cache.DefaultTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	s := &Service{
		cfg:       cfg,
		slots:     make(map[string]*providerSlot, len(providers)),
		lastLogAt: map[string]time.Time{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, p := range providers {
		if p == nil {
			continue
		}
		id := p.ID()
		if _, dup := s.slots[id]; dup {
			s.warnf("provider_duplicate", "provider=%s", id)
			continue
		}
		s.order = append(s.order, id)
		s.slots[id] = &providerSlot{
			provider: p,
			usage:    cache.New[core.UsageSnapshot](cfg.UsageTTL, cache.WithClock(s.now), cache.WithLabel(id+"_usage")),
			tier:     cache.New[core.TierInfo](cfg.UsageTTL, cache.WithClock(s.now), cache.WithLabel(id+"_tier")),
		}
	}

	s.infof("service_start", "providers=%s ttl=%s poll_interval=%s", strings.Join(s.order, ","), cfg.UsageTTL, cfg.PollInterval)
	return s
}

// Providers returns the registered provider IDs in registration order.
func (s *Service) Providers() []string {
	return append([]string(nil), s.order...)
}

func (s *Service) Describe(providerID string) (core.ProviderInfo, error) {
	slot, err := s.slot(providerID)
	if err != nil {
		return core.ProviderInfo{}, err
	}
	return slot.provider.Describe(), nil
}

// GetUsage serves the cached snapshot while fresh and otherwise fetches.
func (s *Service) GetUsage(ctx context.Context, providerID string) (core.UsageSnapshot, error) {
	slot, err := s.slot(providerID)
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	if snap, ok := slot.usage.Get(); ok {
		return snap, nil
	}
	return s.fetch(ctx, providerID, slot)
}

func (s *Service) GetTier(ctx context.Context, providerID string) (core.TierInfo, error) {
	slot, err := s.slot(providerID)
	if err != nil {
		return core.TierInfo{}, err
	}
	if t, ok := slot.tier.Get(); ok {
		return t, nil
	}
	snap, err := s.fetch(ctx, providerID, slot)
	if err != nil {
		return core.TierInfo{}, err
	}
	return snap.Tier, nil
}

// GetAll returns usage and tier. When either cache is cold both are
// refreshed from a single upstream exchange.
func (s *Service) GetAll(ctx context.Context, providerID string) (core.UsageSnapshot, core.TierInfo, error) {
	slot, err := s.slot(providerID)
	if err != nil {
		return core.UsageSnapshot{}, core.TierInfo{}, err
	}
	snap, usageOK := slot.usage.Get()
	t, tierOK := slot.tier.Get()
	if usageOK && tierOK {
		return snap, t, nil
	}
	snap, err = s.fetch(ctx, providerID, slot)
	if err != nil {
		return core.UsageSnapshot{}, core.TierInfo{}, err
	}
	return snap, snap.Tier, nil
}

// Refresh drops both caches for the provider and fetches again. It never
// joins an exchange that was already in flight when it was called.
func (s *Service) Refresh(ctx context.Context, providerID string) (core.UsageSnapshot, error) {
	slot, err := s.slot(providerID)
	if err != nil {
		return core.UsageSnapshot{}, err
	}
	slot.reset()
	s.group.Forget(providerID)
	return s.fetch(ctx, providerID, slot)
}

// RefreshAll refreshes every provider concurrently. Results are positional
// with Providers(); one provider failing does not affect the others.
func (s *Service) RefreshAll(ctx context.Context) []Result {
	results := make([]Result, len(s.order))
	var wg sync.WaitGroup
	for i, id := range s.order {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			snap, err := s.Refresh(ctx, id)
			results[i] = Result{ProviderID: id, Snapshot: snap, Err: err}
		}(i, id)
	}
	wg.Wait()
	return results
}

func (s *Service) HasCredential(providerID string) bool {
	slot, err := s.slot(providerID)
	if err != nil {
		return false
	}
	return slot.provider.HasCredential()
}

// ValidateCredential checks candidate upstream without storing it. An empty
// candidate validates the stored credential.
func (s *Service) ValidateCredential(ctx context.Context, providerID, candidate string) error {
	slot, err := s.slot(providerID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	err = slot.provider.ValidateCredential(ctx, candidate)
	if err != nil {
		s.warnf("credential_invalid", "provider=%s kind=%s", providerID, core.KindOf(err))
	}
	return err
}

func (s *Service) SaveCredential(providerID, value string) error {
	slot, writer, err := s.writer(providerID)
	if err != nil {
		return err
	}
	if err := writer.SaveCredential(value); err != nil {
		return fmt.Errorf("daemon: save %s credential: %w", providerID, err)
	}
	slot.reset()
	s.group.Forget(providerID)
	s.infof("credential_saved", "provider=%s", providerID)
	return nil
}

func (s *Service) DeleteCredential(providerID string) error {
	slot, writer, err := s.writer(providerID)
	if err != nil {
		return err
	}
	if err := writer.DeleteCredential(); err != nil {
		return fmt.Errorf("daemon: delete %s credential: %w", providerID, err)
	}
	slot.reset()
	s.group.Forget(providerID)
	s.infof("credential_deleted", "provider=%s", providerID)
	return nil
}

func (s *Service) slot(providerID string) (*providerSlot, error) {
	slot, ok := s.slots[strings.TrimSpace(providerID)]
	if !ok {
		return nil, fmt.Errorf("daemon: %w %q (known: %s)", ErrUnknownProvider, providerID, strings.Join(s.order, ", "))
	}
	return slot, nil
}

func (s *Service) writer(providerID string) (*providerSlot, core.CredentialWriter, error) {
	slot, err := s.slot(providerID)
	if err != nil {
		return nil, nil, err
	}
	writer, ok := slot.provider.(core.CredentialWriter)
	if !ok {
		return nil, nil, fmt.Errorf("daemon: %s: %w", providerID, ErrCredentialNotManaged)
	}
	return slot, writer, nil
}

// fetch performs one upstream exchange per provider at a time; callers that
// arrive while it is in flight share its result. The exchange is detached
// from any single caller's cancellation and bounded by FetchTimeout; each
// caller stops waiting when its own ctx is done. Failures are not cached.
func (s *Service) fetch(ctx context.Context, providerID string, slot *providerSlot) (core.UsageSnapshot, error) {
	ch := s.group.DoChan(providerID, func() (any, error) {
		gen := slot.generation()
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
		defer cancel()

		started := s.now()
		snap, err := slot.provider.FetchUsage(fetchCtx)
		if err != nil {
			if s.shouldLog("fetch_failed_"+providerID, 30*time.Second) {
				s.warnf("fetch_failed", "provider=%s kind=%s error=%v", providerID, core.KindOf(err), err)
			}
			return core.UsageSnapshot{}, err
		}
		if !slot.store(gen, snap) {
			s.infof("fetch_superseded", "provider=%s", providerID)
		}
		s.infof("fetch_ok", "provider=%s windows=%d peak=%.1f plan=%s duration_ms=%d",
			providerID, len(snap.Windows), snap.PeakUtilization(), snap.Tier.PlanName, s.now().Sub(started).Milliseconds())
		s.record(fetchCtx, snap)
		return snap, nil
	})

	select {
	case <-ctx.Done():
		s.infof("fetch_abandoned", "provider=%s reason=%v", providerID, ctx.Err())
		return core.UsageSnapshot{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.infof("fetch_shared", "provider=%s", providerID)
		}
		if res.Err != nil {
			return core.UsageSnapshot{}, res.Err
		}
		return res.Val.(core.UsageSnapshot), nil
	}
}

func (s *Service) record(ctx context.Context, snap core.UsageSnapshot) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, snap); err != nil && s.shouldLog("history_record_warning", time.Minute) {
		s.warnf("history_record_warning", "provider=%s error=%v", snap.ProviderID, err)
	}
}

// --- Poll loop ---

// Run polls every provider on the configured interval until ctx is done,
// handing each cycle's results to handler.
func (s *Service) Run(ctx context.Context, handler SnapshotHandler) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.infof("poll_loop_start", "interval=%s", s.cfg.PollInterval)
	s.pollProviders(ctx, handler)
	for {
		select {
		case <-ctx.Done():
			s.infof("poll_loop_stop", "reason=context_done")
			return
		case <-ticker.C:
			s.pollProviders(ctx, handler)
		}
	}
}

func (s *Service) pollProviders(ctx context.Context, handler SnapshotHandler) []Result {
	if len(s.order) == 0 {
		if s.shouldLog("poll_no_providers", 30*time.Second) {
			s.infof("poll_skipped", "reason=no_enabled_providers")
		}
		return nil
	}
	started := s.now()

	results := s.RefreshAll(ctx)
	statusCounts := lo.CountValuesBy(results, Result.Status)
	errorCount := lo.CountBy(results, func(r Result) bool { return r.Err != nil })

	if errorCount > 0 || s.shouldLog("poll_cycle_info", 45*time.Second) {
		s.infof(
			"poll_cycle",
			"duration_ms=%d providers=%d status_ok=%d status_near=%d status_auth=%d status_limited=%d status_error=%d",
			s.now().Sub(started).Milliseconds(),
			len(results),
			statusCounts[core.StatusOK],
			statusCounts[core.StatusNearLimit],
			statusCounts[core.StatusAuth],
			statusCounts[core.StatusLimited],
			statusCounts[core.StatusError],
		)
	}
	if handler != nil {
		handler(results)
	}
	return results
}

// --- Logging ---

func (s *Service) infof(event, format string, args ...any) {
	if s == nil || !s.cfg.Verbose {
		return
	}
	if strings.TrimSpace(format) == "" {
		log.Printf("daemon level=info event=%s", event)
		return
	}
	log.Printf("daemon level=info event=%s "+format, append([]any{event}, args...)...)
}

func (s *Service) warnf(event, format string, args ...any) {
	if s == nil || !s.cfg.Verbose {
		return
	}
	if strings.TrimSpace(format) == "" {
		log.Printf("daemon level=warn event=%s", event)
		return
	}
	log.Printf("daemon level=warn event=%s "+format, append([]any{event}, args...)...)
}

func (s *Service) shouldLog(key string, interval time.Duration) bool {
	if s == nil {
		return false
	}
	s.logMu.Lock()
	defer s.logMu.Unlock()
	now := s.now()
	if interval > 0 {
		if last, ok := s.lastLogAt[key]; ok && now.Sub(last) < interval {
			return false
		}
	}
	s.lastLogAt[key] = now
	return true
}
