package removal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/delist-sh/delist/internal/broker"
	"github.com/delist-sh/delist/internal/events"
	"github.com/delist-sh/delist/internal/store"
	"github.com/delist-sh/delist/pkg/models"
	"github.com/delist-sh/delist/pkg/utils"
)

// Submitter files one opt-out request. FormSubmitter is the production
// implementation.
type Submitter interface {
	Submit(ctx context.Context, def *broker.Definition, fields map[string]string) (models.Outcome, []byte, error)
}

// BatchResult is the immediate answer to ProcessBatch: how many
// attempts were named and how many actually entered the pool.
type BatchResult struct {
	JobID  string `json:"job_id"`
	Total  int    `json:"total"`
	Queued int    `json:"queued"`
}

// Pool processes removal attempts with a global concurrency bound.
// One goroutine per attempt; the semaphore, not the batch, limits
// parallelism, so two overlapping batches share the same budget.
type Pool struct {
	store     *store.Store
	registry  *broker.Registry
	profiles  models.ProfileSource
	submitter Submitter
	hub       *events.Hub
	metrics   *utils.Metrics
	logger    *logrus.Logger
	cfg       models.RemovalConfig

	sem   *semaphore.Weighted
	sleep Sleeper
	wg    sync.WaitGroup
}

func NewPool(
	st *store.Store,
	registry *broker.Registry,
	profiles models.ProfileSource,
	submitter Submitter,
	hub *events.Hub,
	metrics *utils.Metrics,
	cfg models.RemovalConfig,
	logger *logrus.Logger,
) *Pool {
	if logger == nil {
		logger = logrus.New()
	}
	return &Pool{
		store:     st,
		registry:  registry,
		profiles:  profiles,
		submitter: submitter,
		hub:       hub,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentSubmissions)),
		sleep:     DefaultSleeper,
	}
}

// SetSleeper swaps the backoff sleeper. Tests inject one that returns
// instantly.
func (p *Pool) SetSleeper(s Sleeper) { p.sleep = s }

// CreateRemovalAttempts makes one Pending attempt per confirmed
// finding. Findings that are unconfirmed or already linked produce an
// error for the whole call, nothing partial is kept hidden: attempts
// created before the failing finding remain valid and are reported.
func (p *Pool) CreateRemovalAttempts(findingIDs []string) ([]string, error) {
	now := time.Now().UTC()
	ids := make([]string, 0, len(findingIDs))
	for _, fid := range findingIDs {
		a, err := p.store.CreateAttemptForFinding(fid, now)
		if err != nil {
			return ids, fmt.Errorf("finding %s: %w", fid, err)
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// ProcessBatch queues eligible attempts and returns immediately.
// Eligible means Pending and not parked on a CAPTCHA; everything else
// is counted in Total but not queued.
func (p *Pool) ProcessBatch(ctx context.Context, attemptIDs []string) BatchResult {
	result := BatchResult{JobID: uuid.New().String(), Total: len(attemptIDs)}
	for _, id := range attemptIDs {
		attempt, err := p.store.GetRemovalAttempt(id)
		if err != nil {
			p.logger.WithError(err).WithField("attempt_id", id).Warn("Skipping unknown attempt")
			continue
		}
		if attempt.Status != models.RemovalPending || attempt.CaptchaBlocked() {
			continue
		}
		result.Queued++
		p.wg.Add(1)
		go func(attemptID string) {
			defer p.wg.Done()
			p.run(ctx, result.JobID, attemptID)
		}(id)
	}
	p.logger.WithFields(logrus.Fields{
		"batch_id": result.JobID,
		"total":    result.Total,
		"queued":   result.Queued,
	}).Info("Removal batch queued")
	return result
}

// Retry rearms a Failed attempt and spawns exactly one task for it.
// Any other status is rejected.
func (p *Pool) Retry(ctx context.Context, attemptID string) error {
	attempt, err := p.store.GetRemovalAttempt(attemptID)
	if err != nil {
		return err
	}
	if attempt.Status != models.RemovalFailed {
		return fmt.Errorf("attempt %s is %s, only Failed attempts can be retried", attemptID, attempt.Status)
	}
	if err := p.store.ResetToPending(attemptID, time.Now().UTC()); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.RetriesSpawned.Inc()
	}
	p.publish(events.KindRemovalRetry, events.RemovalData{AttemptID: attemptID, BrokerID: attempt.BrokerID})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, "", attemptID)
	}()
	return nil
}

// ReconcileStale resets Processing attempts orphaned by a crashed
// worker back to Pending. Called once at startup.
func (p *Pool) ReconcileStale() (int, error) {
	n, err := p.store.ReconcileStale(p.cfg.StaleProcessingAfter, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.WithField("recovered", n).Warn("Reset stale Processing attempts to Pending")
	}
	return n, nil
}

// Wait blocks until all queued tasks have finished.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) run(ctx context.Context, batchID, attemptID string) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer p.sem.Release(1)

	now := time.Now().UTC()
	if err := p.store.MarkProcessing(attemptID, now); err != nil {
		p.logger.WithError(err).WithField("attempt_id", attemptID).Warn("Attempt not claimable")
		return
	}

	attempt, err := p.store.GetRemovalAttempt(attemptID)
	if err != nil {
		p.fail(batchID, attemptID, "", fmt.Sprintf("load attempt: %v", err))
		return
	}
	p.publish(events.KindRemovalStarted, events.RemovalData{
		BatchID: batchID, AttemptID: attemptID, BrokerID: attempt.BrokerID,
	})

	def, err := p.registry.Get(attempt.BrokerID)
	if err != nil {
		p.fail(batchID, attemptID, attempt.BrokerID, fmt.Sprintf("unknown broker %s", attempt.BrokerID))
		return
	}
	finding, err := p.store.GetFinding(attempt.FindingID)
	if err != nil {
		p.fail(batchID, attemptID, attempt.BrokerID, fmt.Sprintf("load finding: %v", err))
		return
	}

	fields, missing := p.mapFields(finding)
	if missing != "" {
		// Terminal without a submission; nothing to retry.
		p.fail(batchID, attemptID, attempt.BrokerID, "missing required field: "+missing)
		return
	}

	var (
		outcome    models.Outcome
		screenshot []byte
	)
	err = RetryDo(ctx, p.cfg.MaxAttempts, p.sleep, func(ctx context.Context) error {
		var submitErr error
		outcome, screenshot, submitErr = p.submitter.Submit(ctx, def, fields)
		return submitErr
	})
	if screenshot != nil {
		if _, evErr := p.store.AddEvidence(attemptID, store.EvidenceScreenshot, screenshot, time.Now().UTC()); evErr != nil {
			p.logger.WithError(evErr).WithField("attempt_id", attemptID).Warn("Failed to store evidence")
		}
	}
	if err != nil {
		p.fail(batchID, attemptID, attempt.BrokerID, err.Error())
		return
	}

	p.classify(batchID, attemptID, attempt.BrokerID, outcome)
}

// classify maps an outcome onto the attempt's stored status and the
// matching event.
func (p *Pool) classify(batchID, attemptID, brokerID string, outcome models.Outcome) {
	now := time.Now().UTC()
	p.countOutcome(outcome.Kind)

	switch outcome.Kind {
	case models.OutcomeSubmitted, models.OutcomeRequiresEmailVerification:
		if err := p.store.MarkSubmitted(attemptID, now); err != nil {
			p.logger.WithError(err).WithField("attempt_id", attemptID).Error("Failed to mark submitted")
			return
		}
		p.publish(events.KindRemovalSuccess, events.RemovalData{
			BatchID: batchID, AttemptID: attemptID, BrokerID: brokerID, Outcome: string(outcome.Kind),
		})
	case models.OutcomeRequiresCaptcha:
		if err := p.store.MarkCaptchaBlocked(attemptID, outcome.CaptchaURL, now); err != nil {
			p.logger.WithError(err).WithField("attempt_id", attemptID).Error("Failed to park on captcha")
			return
		}
		p.publish(events.KindRemovalCaptcha, events.RemovalData{
			BatchID: batchID, AttemptID: attemptID, BrokerID: brokerID,
			Outcome: string(outcome.Kind), Error: outcome.CaptchaURL,
		})
	case models.OutcomeRequiresAccountCreation:
		p.failStored(batchID, attemptID, brokerID, "account creation required (unsupported)")
	case models.OutcomeFailed:
		p.failStored(batchID, attemptID, brokerID, outcome.Reason)
	default:
		p.failStored(batchID, attemptID, brokerID, fmt.Sprintf("unknown outcome %q", outcome.Kind))
	}
}

// fail counts the outcome and stores the terminal failure.
func (p *Pool) fail(batchID, attemptID, brokerID, reason string) {
	p.countOutcome(models.OutcomeFailed)
	p.failStored(batchID, attemptID, brokerID, reason)
}

func (p *Pool) failStored(batchID, attemptID, brokerID, reason string) {
	if err := p.store.MarkFailed(attemptID, reason, time.Now().UTC()); err != nil {
		p.logger.WithError(err).WithField("attempt_id", attemptID).Error("Failed to mark failed")
		return
	}
	p.publish(events.KindRemovalFailed, events.RemovalData{
		BatchID: batchID, AttemptID: attemptID, BrokerID: brokerID,
		Outcome: string(models.OutcomeFailed), Error: reason,
	})
}

// mapFields builds the submission payload. The listing URL comes from
// the finding; everything else is decrypted profile data. Returns the
// first missing required field.
func (p *Pool) mapFields(finding *models.Finding) (map[string]string, string) {
	fields := map[string]string{
		models.FieldListingURL: finding.ListingURL,
	}
	if finding.ListingURL == "" {
		return nil, models.FieldListingURL
	}

	profile, err := p.profiles.Profile(finding.ProfileID)
	if err != nil {
		return nil, models.FieldEmail
	}
	for _, name := range []string{models.FieldEmail, models.FieldFirstName, models.FieldLastName} {
		value, ok := profile.Field(name)
		if !ok || value == "" {
			return nil, name
		}
		fields[name] = value
	}
	return fields, ""
}

func (p *Pool) countOutcome(kind models.OutcomeKind) {
	if p.metrics != nil {
		p.metrics.RemovalOutcomes.WithLabelValues(string(kind)).Inc()
	}
}

func (p *Pool) publish(kind string, data events.RemovalData) {
	if p.hub != nil {
		p.hub.Publish(events.Make(kind, data))
	}
}
