package reports

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/wren/internal/events"
)

// RandSource abstracts randomness for deterministic tests.
type RandSource interface {
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64
}

type defaultRand struct{}

func (defaultRand) Float64() float64 { return rand.Float64() }

// Processor queues report jobs and completes each after a randomized
// delay. Completions are stored, published as KindReportComplete, and
// announced as an agent message.
type Processor struct {
	store  *Store
	bus    *events.Bus
	logger *slog.Logger

	// MinDelay and MaxDelay bound the simulated processing time.
	MinDelay time.Duration
	MaxDelay time.Duration
	Rand     RandSource

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessor creates a processor. Call Close to stop pending jobs.
func NewProcessor(store *Store, bus *events.Bus, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		store:    store,
		bus:      bus,
		logger:   logger,
		MinDelay: 3 * time.Second,
		MaxDelay: 5 * time.Second,
		Rand:     defaultRand{},
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Generate queues a report of reportType and returns the queued job
// with the delay it will take.
func (p *Processor) Generate(reportType string) (*Report, time.Duration, error) {
	if !ValidType(reportType) {
		return nil, 0, fmt.Errorf("unknown report type %q", reportType)
	}
	r := &Report{
		ID:        "report_" + uuid.NewString(),
		Type:      reportType,
		Status:    StatusProcessing,
		CreatedAt: p.now().UTC().Format(time.RFC3339Nano),
	}
	if err := p.store.Create(r); err != nil {
		return nil, 0, err
	}

	delay := p.delay()
	p.logger.Info("report queued", "report_id", r.ID, "type", r.Type, "delay", delay)
	p.bus.Emit(events.SourceReports, events.KindReportQueued, map[string]any{
		"report_id":   r.ID,
		"report_type": r.Type,
	})
	p.schedule(r, delay)
	return r, delay, nil
}

// Status returns the current state of a job.
func (p *Processor) Status(id string) (*Report, error) {
	return p.store.Get(id)
}

// Resume reschedules every job left processing by a previous run.
func (p *Processor) Resume() error {
	pending, err := p.store.Pending()
	if err != nil {
		return err
	}
	for _, r := range pending {
		p.schedule(r, p.delay())
	}
	if len(pending) > 0 {
		p.logger.Info("resumed pending reports", "count", len(pending))
	}
	return nil
}

// Close abandons jobs still waiting and blocks until in-flight
// completions finish.
func (p *Processor) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Processor) delay() time.Duration {
	span := p.MaxDelay - p.MinDelay
	if span <= 0 {
		return p.MinDelay
	}
	return p.MinDelay + time.Duration(p.Rand.Float64()*float64(span))
}

func (p *Processor) schedule(r *Report, delay time.Duration) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-p.ctx.Done():
			return
		case <-t.C:
		}
		p.complete(r)
	}()
}

func (p *Processor) complete(r *Report) {
	now := p.now()
	data := p.build(r.Type, now)
	if err := p.store.Complete(r.ID, data, now); err != nil {
		p.logger.Error("report completion failed", "report_id", r.ID, "error", err)
		if ferr := p.store.Fail(r.ID, now); ferr != nil {
			p.logger.Warn("marking report failed", "report_id", r.ID, "error", ferr)
		}
		p.bus.Emit(events.SourceReports, events.KindReportComplete, map[string]any{
			"report_id": r.ID, "report_type": r.Type, "status": string(StatusFailed),
		})
		return
	}

	done := *r
	done.Status = StatusCompleted
	done.CompletedAt = now.UTC().Format(time.RFC3339Nano)
	done.Data = &data

	p.logger.Info("report completed", "report_id", r.ID, "type", r.Type)
	p.bus.Emit(events.SourceReports, events.KindReportComplete, map[string]any{
		"report_id": r.ID, "report_type": r.Type, "status": string(StatusCompleted),
	})
	p.bus.Publish(events.AgentMessage(events.SourceReports, ReadyMessageID(r.ID), ReadyMessage(&done), ReadyTitle))
}

func (p *Processor) build(reportType string, at time.Time) Data {
	rnd := p.Rand.Float64
	label := reportType
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	return Data{
		Summary: fmt.Sprintf("%s Report - %s", label, at.Format("1/2/2006")),
		Metrics: Metrics{
			TotalRequests:   int(rnd()*10000) + 1000,
			AvgResponseTime: fmt.Sprintf("%.2fms", rnd()*500+100),
			SuccessRate:     fmt.Sprintf("%.1f%%", 95+rnd()*4),
			ActiveUsers:     int(rnd()*500) + 100,
		},
		Period: "Last 30 days",
	}
}
