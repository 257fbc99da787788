package scan

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

// Fetcher retrieves the rendered HTML of a broker search page. The
// browser engine is the production implementation.
type Fetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// Orchestrator runs profile-wide scans across the broker catalog. A
// scan is started synchronously (job row plus one row per broker) and
// executed by a detached goroutine; progress is observed through the
// store and the event hub.
type Orchestrator struct {
	registry *broker.Registry
	store    *store.Store
	profiles models.ProfileSource
	fetcher  Fetcher
	hub      *events.Hub
	metrics  *utils.Metrics
	logger   *logrus.Logger
	cfg      models.ScanConfig

	mu          sync.Mutex
	activeScans map[string]context.CancelFunc
}

func NewOrchestrator(
	registry *broker.Registry,
	st *store.Store,
	profiles models.ProfileSource,
	fetcher Fetcher,
	hub *events.Hub,
	metrics *utils.Metrics,
	cfg models.ScanConfig,
	logger *logrus.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		registry:    registry,
		store:       st,
		profiles:    profiles,
		fetcher:     fetcher,
		hub:         hub,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		activeScans: make(map[string]context.CancelFunc),
	}
}

// StartScan creates the scan job and its broker rows, then returns the
// job id while the fetches run in the background. Brokers whose search
// cannot run against this profile are recorded Skipped up front and
// never attempted.
func (o *Orchestrator) StartScan(ctx context.Context, profileID string, filter broker.Filter) (string, error) {
	profile, err := o.profiles.Profile(profileID)
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	defs := o.registry.Select(filter)
	if len(defs) == 0 {
		return "", fmt.Errorf("no brokers match the filter")
	}

	now := time.Now().UTC()
	job := &models.ScanJob{
		ID:           uuid.New().String(),
		ProfileID:    profileID,
		StartedAt:    now,
		Status:       models.ScanJobInProgress,
		TotalBrokers: len(defs),
	}
	if err := o.store.CreateScanJob(job); err != nil {
		return "", err
	}

	scans := make([]models.BrokerScan, 0, len(defs))
	runnable := make([]*broker.Definition, 0, len(defs))
	skipped := 0
	for _, def := range defs {
		bs := models.BrokerScan{
			ID:        uuid.New().String(),
			ScanJobID: job.ID,
			BrokerID:  def.ID,
			Status:    models.BrokerScanPending,
			StartedAt: now,
		}
		if missing := o.missingFields(def, profile); len(missing) != 0 {
			done := now
			bs.Status = models.BrokerScanSkipped
			bs.ErrorMessage = (&InsufficientProfileDataError{Missing: missing}).Error()
			bs.CompletedAt = &done
			skipped++
		} else {
			runnable = append(runnable, def)
		}
		scans = append(scans, bs)
	}
	if err := o.store.CreateBrokerScans(scans); err != nil {
		// The job row already exists; close it out so it cannot sit in
		// InProgress with no goroutine behind it.
		if finErr := o.store.FinishScanJob(job.ID, models.ScanJobFailed, err.Error(), time.Now().UTC()); finErr != nil {
			o.logger.WithError(finErr).WithField("scan_job_id", job.ID).Error("Failed to mark broken scan job failed")
		}
		return "", err
	}

	scanCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.activeScans[job.ID] = cancel
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.ScansStarted.Inc()
	}
	o.logger.WithFields(logrus.Fields{
		"scan_job_id": job.ID,
		"profile_id":  profileID,
		"brokers":     len(defs),
		"skipped":     skipped,
	}).Info("Scan started")

	// Skipped rows still count toward completion.
	for i := range scans {
		if scans[i].Status == models.BrokerScanSkipped {
			o.finishBroker(&scans[i])
		}
	}

	go o.executeScan(scanCtx, job.ID, profile, scans, runnable)
	return job.ID, nil
}

// CancelScan requests cooperative cancellation of a running scan.
// Brokers already in flight finish; nothing new is started.
func (o *Orchestrator) CancelScan(jobID string) error {
	o.mu.Lock()
	cancel, ok := o.activeScans[jobID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active scan with id %s", jobID)
	}
	cancel()
	return nil
}

func (o *Orchestrator) executeScan(ctx context.Context, jobID string, profile models.ProfileAccessor, scans []models.BrokerScan, defs []*broker.Definition) {
	defer func() {
		o.mu.Lock()
		delete(o.activeScans, jobID)
		o.mu.Unlock()
	}()

	byBroker := make(map[string]*models.BrokerScan, len(scans))
	for i := range scans {
		byBroker[scans[i].BrokerID] = &scans[i]
	}

	sem := semaphore.NewWeighted(int64(o.cfg.MaxConcurrentFetches))
	var wg sync.WaitGroup
	started := make(map[string]bool, len(defs))
	for _, def := range defs {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		started[def.ID] = true
		wg.Add(1)
		go func(def *broker.Definition) {
			defer wg.Done()
			defer sem.Release(1)
			o.runBroker(ctx, def, profile, byBroker[def.ID])
		}(def)
	}
	wg.Wait()

	status := models.ScanJobCompleted
	errMsg := ""
	if ctx.Err() != nil {
		status = models.ScanJobCancelled
		errMsg = "cancelled by user"
		// Brokers the cancellation cut off before they started still
		// need a terminal row.
		done := time.Now().UTC()
		for _, def := range defs {
			if started[def.ID] {
				continue
			}
			bs := byBroker[def.ID]
			bs.Status = models.BrokerScanSkipped
			bs.ErrorMessage = "scan cancelled before broker started"
			bs.CompletedAt = &done
			o.finishBroker(bs)
		}
	}
	if err := o.store.FinishScanJob(jobID, status, errMsg, time.Now().UTC()); err != nil {
		o.logger.WithError(err).WithField("scan_job_id", jobID).Error("Failed to finalize scan job")
		return
	}
	o.logger.WithFields(logrus.Fields{"scan_job_id": jobID, "status": status}).Info("Scan finished")
}

// runBroker performs one broker's search and records its outcome. All
// failures stay inside this broker's row.
func (o *Orchestrator) runBroker(ctx context.Context, def *broker.Definition, profile models.ProfileAccessor, bs *models.BrokerScan) {
	bs.Status = models.BrokerScanInProgress

	listings, err := o.search(ctx, def, profile)
	done := time.Now().UTC()
	bs.CompletedAt = &done

	if err != nil {
		bs.Status = models.BrokerScanFailed
		bs.ErrorMessage = err.Error()
		o.finishBroker(bs)
		return
	}

	stored := 0
	for _, listing := range listings {
		f := &models.Finding{
			ID:                 uuid.New().String(),
			BrokerScanID:       bs.ID,
			ScanJobID:          bs.ScanJobID,
			BrokerID:           def.ID,
			ProfileID:          profile.ProfileID(),
			ListingURL:         listing.ListingURL,
			VerificationStatus: models.VerificationPending,
			Extracted:          listing.Extracted,
			DiscoveredAt:       time.Now().UTC(),
		}
		inserted, err := o.store.InsertFinding(f)
		if err != nil {
			o.logger.WithError(err).WithField("broker_id", def.ID).Warn("Failed to store finding")
			continue
		}
		if inserted {
			stored++
			if o.metrics != nil {
				o.metrics.FindingsStored.Inc()
			}
		} else if o.metrics != nil {
			o.metrics.DuplicatesSkipped.Inc()
		}
	}

	bs.Status = models.BrokerScanSuccess
	bs.FindingsCount = stored
	o.finishBroker(bs)
}

// search drives the broker's configured search method. A broker with
// no selector set is scanned blind: success with zero findings so the
// operator knows a manual check is due.
func (o *Orchestrator) search(ctx context.Context, def *broker.Definition, profile models.ProfileAccessor) ([]Listing, error) {
	switch def.Search.Kind {
	case broker.SearchURLTemplate:
		searchURL, err := BuildSearchURL(def.Search.URLTemplate, profile)
		if err != nil {
			return nil, err
		}
		html, err := o.fetcher.FetchHTML(ctx, searchURL)
		if err != nil {
			return nil, err
		}
		if def.Search.Selectors == nil {
			o.logger.WithField("broker_id", def.ID).Info("No selectors configured, manual review required")
			return nil, nil
		}
		listings, err := ParseResults(html, def.ID, def.Search.Selectors, def.BaseURL)
		if err != nil {
			return nil, err
		}
		return listings, nil
	case broker.SearchManual, broker.SearchWebForm:
		// Neither variant is automatable yet; the row succeeds empty so
		// the broker surfaces in manual-review reporting.
		o.logger.WithFields(logrus.Fields{"broker_id": def.ID, "kind": def.Search.Kind}).
			Info("Search method requires manual handling")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown search kind %q", def.Search.Kind)
	}
}

// finishBroker persists a broker row's terminal state and publishes it.
func (o *Orchestrator) finishBroker(bs *models.BrokerScan) {
	if err := o.store.UpdateBrokerScan(bs.ID, bs.Status, bs.ErrorMessage, bs.FindingsCount, bs.CompletedAt); err != nil {
		o.logger.WithError(err).WithField("broker_scan_id", bs.ID).Error("Failed to update broker scan")
	}
	if _, err := o.store.IncrementScanJobProgress(bs.ScanJobID); err != nil {
		o.logger.WithError(err).WithField("scan_job_id", bs.ScanJobID).Error("Failed to bump scan progress")
	}
	if o.metrics != nil {
		o.metrics.BrokerScans.WithLabelValues(string(bs.Status)).Inc()
	}
	if o.hub != nil {
		o.hub.Publish(events.Make(events.KindScanBroker, events.BrokerScanData{
			ScanJobID: bs.ScanJobID,
			BrokerID:  bs.BrokerID,
			Status:    string(bs.Status),
			Findings:  bs.FindingsCount,
			Error:     bs.ErrorMessage,
		}))
	}
}

// missingFields prechecks a broker's declared and template-implied
// required fields against the profile.
func (o *Orchestrator) missingFields(def *broker.Definition, profile models.ProfileAccessor) []string {
	required := append([]string{}, def.Search.RequiredFields...)
	if def.Search.Kind == broker.SearchURLTemplate {
		required = append(required, RequiredTemplateFields(def.Search.URLTemplate)...)
	}

	seen := make(map[string]bool, len(required))
	var missing []string
	for _, field := range required {
		if seen[field] {
			continue
		}
		seen[field] = true
		if v, ok := profile.Field(field); !ok || v == "" {
			missing = append(missing, field)
		}
	}
	return sorted(missing)
}

// ActiveScans lists the ids of scans still running.
func (o *Orchestrator) ActiveScans() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.activeScans))
	for id := range o.activeScans {
		ids = append(ids, id)
	}
	return ids
}
