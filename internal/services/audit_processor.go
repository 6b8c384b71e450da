package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blogle/dojo-sub001/internal/log"
)

// AuditProcessorConfig holds configuration for the audit processor
type AuditProcessorConfig struct {
	// Interval is how often a full audit runs (default: 15m)
	Interval time.Duration

	// Repair rebuilds the caches when an audit finds drift (default: false)
	Repair bool
}

// DefaultAuditProcessorConfig returns sensible defaults
func DefaultAuditProcessorConfig() AuditProcessorConfig {
	return AuditProcessorConfig{
		Interval: 15 * time.Minute,
		Repair:   false,
	}
}

// AuditProcessor runs full ledger audits on a schedule.
type AuditProcessor struct {
	auditor *Auditor
	config  AuditProcessorConfig
	logger  *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	last    AuditReport
	lastErr error
	runs    int
}

// NewAuditProcessor creates a new audit processor
func NewAuditProcessor(auditor *Auditor, config AuditProcessorConfig) *AuditProcessor {
	p := &AuditProcessor{
		auditor: auditor,
		config:  config,
		logger:  log.FromContext(context.Background()).WithComponent(log.ComponentWorker),
	}
	if auditor != nil {
		p.logger = auditor.logger.WithComponent(log.ComponentWorker)
	}
	return p
}

// Start begins the audit loop. Returns an error if already running.
func (p *AuditProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("audit processor is already running")
	}
	if p.config.Interval <= 0 {
		p.mu.Unlock()
		return fmt.Errorf("audit interval must be positive, got %v", p.config.Interval)
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Audit processor started",
		"interval", p.config.Interval,
		"repair", p.config.Repair)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *AuditProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Audit processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Audit processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *AuditProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *AuditProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Audit immediately on startup
	p.runOnceLogged(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnceLogged(ctx)
		}
	}
}

func (p *AuditProcessor) runOnceLogged(ctx context.Context) {
	if _, err := p.RunOnce(ctx); err != nil {
		p.logger.LogFailure(ctx, "Scheduled audit failed", log.OpAudit, err, log.NewFields())
	}
}

// RunOnce performs one full audit and, when configured, repairs drift. The
// returned report describes the state before any repair.
func (p *AuditProcessor) RunOnce(ctx context.Context) (AuditReport, error) {
	report, err := p.auditor.AuditAll(ctx)
	if err == nil && !report.Clean() && p.config.Repair {
		_, err = p.auditor.Repair(ctx)
	}

	p.mu.Lock()
	p.runs++
	p.last = report
	p.lastErr = err
	p.mu.Unlock()

	return report, err
}

// LastReport returns the outcome of the most recent audit and how many
// audits have run.
func (p *AuditProcessor) LastReport() (AuditReport, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.runs, p.lastErr
}
