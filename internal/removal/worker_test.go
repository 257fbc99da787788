package removal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/delist-sh/delist/internal/broker"
	"github.com/delist-sh/delist/internal/events"
	"github.com/delist-sh/delist/internal/store"
	"github.com/delist-sh/delist/pkg/models"
	"github.com/delist-sh/delist/pkg/utils"
)

type stubProfile map[string]string

func (s stubProfile) ProfileID() string { return "profile-1" }

func (s stubProfile) Field(name string) (string, bool) {
	v, ok := s[name]
	return v, ok
}

type stubProfiles struct {
	fields stubProfile
}

func (s stubProfiles) Profile(id string) (models.ProfileAccessor, error) {
	return s.fields, nil
}

// scriptedSubmitter replays a fixed sequence of results and records
// every call.
type scriptedSubmitter struct {
	mu     sync.Mutex
	script []submission
	calls  int
	fields []map[string]string
}

type submission struct {
	outcome    models.Outcome
	screenshot []byte
	err        error
}

func (s *scriptedSubmitter) Submit(ctx context.Context, def *broker.Definition, fields map[string]string) (models.Outcome, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	s.fields = append(s.fields, fields)
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	step := s.script[idx]
	return step.outcome, step.screenshot, step.err
}

func (s *scriptedSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fullProfile() stubProfile {
	return stubProfile{
		models.FieldEmail:     "john@example.com",
		models.FieldFirstName: "John",
		models.FieldLastName:  "Doe",
	}
}

func webFormBroker() *broker.Definition {
	return &broker.Definition{
		ID:      "wf",
		Name:    "WebForm Broker",
		BaseURL: "https://wf.test",
		Search: broker.SearchMethod{
			Kind:        broker.SearchURLTemplate,
			URLTemplate: "https://wf.test/{first}-{last}",
		},
		Removal: broker.RemovalMethod{
			Kind:    broker.RemovalWebForm,
			FormURL: "https://wf.test/optout",
			Form:    &broker.FormSelectors{SubmitButton: "button.submit"},
		},
	}
}

func newTestPool(t *testing.T, submitter Submitter, profile stubProfile) (*Pool, *store.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	st, err := store.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := models.RemovalConfig{
		MaxConcurrentSubmissions: 3,
		MaxAttempts:              3,
		StaleProcessingAfter:     30 * time.Minute,
	}
	pool := NewPool(st, broker.NewRegistry(webFormBroker()), stubProfiles{fields: profile},
		submitter, nil, utils.NewMetrics(false), cfg, logger)
	pool.SetSleeper(func(ctx context.Context, d time.Duration) error { return nil })
	return pool, st
}

// seedAttempt writes the scan job, broker scan and confirmed finding an
// attempt hangs off, then creates the attempt itself.
func seedAttempt(t *testing.T, st *store.Store) string {
	t.Helper()
	now := time.Now().UTC()

	job := &models.ScanJob{
		ID: uuid.New().String(), ProfileID: "profile-1",
		StartedAt: now, Status: models.ScanJobInProgress, TotalBrokers: 1,
	}
	require.NoError(t, st.CreateScanJob(job))

	bs := models.BrokerScan{
		ID: uuid.New().String(), ScanJobID: job.ID, BrokerID: "wf",
		Status: models.BrokerScanSuccess, StartedAt: now,
	}
	require.NoError(t, st.CreateBrokerScans([]models.BrokerScan{bs}))

	f := &models.Finding{
		ID: uuid.New().String(), BrokerScanID: bs.ID, ScanJobID: job.ID,
		BrokerID: "wf", ProfileID: "profile-1",
		ListingURL:         "https://wf.test/people/john-doe",
		VerificationStatus: models.VerificationPending,
		DiscoveredAt:       now,
	}
	inserted, err := st.InsertFinding(f)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, st.SetVerification(f.ID, models.VerificationConfirmed, now))

	attempt, err := st.CreateAttemptForFinding(f.ID, now)
	require.NoError(t, err)
	return attempt.ID
}

func TestProcessBatchSubmitted(t *testing.T) {
	submitter := &scriptedSubmitter{script: []submission{
		{outcome: models.Submitted(), screenshot: []byte{0x89, 0x50}},
	}}
	pool, st := newTestPool(t, submitter, fullProfile())
	attemptID := seedAttempt(t, st)

	result := pool.ProcessBatch(context.Background(), []string{attemptID})
	require.Equal(t, 1, result.Total)
	require.Equal(t, 1, result.Queued)
	require.NotEmpty(t, result.JobID)
	pool.Wait()

	attempt, err := st.GetRemovalAttempt(attemptID)
	require.NoError(t, err)
	require.Equal(t, models.RemovalSubmitted, attempt.Status)
	require.NotNil(t, attempt.SubmittedAt)
	require.Empty(t, attempt.ErrorMessage)

	// submission payload carried the finding URL and profile fields
	require.Equal(t, "https://wf.test/people/john-doe", submitter.fields[0][models.FieldListingURL])
	require.Equal(t, "john@example.com", submitter.fields[0][models.FieldEmail])

	evidence, err := st.ListEvidence(attemptID)
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	require.Equal(t, store.EvidenceScreenshot, evidence[0].Kind)
}

func TestProcessBatchCaptchaParksAttempt(t *testing.T) {
	submitter := &scriptedSubmitter{script: []submission{
		{outcome: models.RequiresCaptcha("https://wf.test/captcha")},
	}}
	pool, st := newTestPool(t, submitter, fullProfile())
	attemptID := seedAttempt(t, st)

	pool.ProcessBatch(context.Background(), []string{attemptID})
	pool.Wait()

	attempt, err := st.GetRemovalAttempt(attemptID)
	require.NoError(t, err)
	require.Equal(t, models.RemovalPending, attempt.Status)
	require.Equal(t, "CAPTCHA_REQUIRED:https://wf.test/captcha", attempt.ErrorMessage)
	require.True(t, attempt.CaptchaBlocked())
	require.Equal(t, "https://wf.test/captcha", attempt.CaptchaURL())

	queue, err := st.CaptchaQueue()
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, attemptID, queue[0].ID)

	// parked attempts are not picked up again
	again := pool.ProcessBatch(context.Background(), []string{attemptID})
	require.Equal(t, 1, again.Total)
	require.Zero(t, again.Queued)
	require.Equal(t, 1, submitter.callCount())
}

func TestProcessBatchAccountCreationIsTerminal(t *testing.T) {
	submitter := &scriptedSubmitter{script: []submission{
		{outcome: models.RequiresAccountCreation()},
	}}
	pool, st := newTestPool(t, submitter, fullProfile())
	attemptID := seedAttempt(t, st)

	pool.ProcessBatch(context.Background(), []string{attemptID})
	pool.Wait()

	attempt, err := st.GetRemovalAttempt(attemptID)
	require.NoError(t, err)
	require.Equal(t, models.RemovalFailed, attempt.Status)
	require.Equal(t, "account creation required (unsupported)", attempt.ErrorMessage)
	require.Equal(t, 1, submitter.callCount())
}

func TestProcessBatchMissingFieldFailsWithoutSubmitting(t *testing.T) {
	submitter := &scriptedSubmitter{script: []submission{{outcome: models.Submitted()}}}
	profile := fullProfile()
	delete(profile, models.FieldEmail)
	pool, st := newTestPool(t, submitter, profile)
	attemptID := seedAttempt(t, st)

	pool.ProcessBatch(context.Background(), []string{attemptID})
	pool.Wait()

	attempt, err := st.GetRemovalAttempt(attemptID)
	require.NoError(t, err)
	require.Equal(t, models.RemovalFailed, attempt.Status)
	require.Equal(t, "missing required field: email", attempt.ErrorMessage)
	require.Zero(t, submitter.callCount())
}

func TestProcessBatchRetriesTransientErrors(t *testing.T) {
	submitter := &scriptedSubmitter{script: []submission{
		{err: contextlessErr("connection reset")},
		{err: contextlessErr("connection reset")},
		{outcome: models.Submitted()},
	}}
	pool, st := newTestPool(t, submitter, fullProfile())
	attemptID := seedAttempt(t, st)

	pool.ProcessBatch(context.Background(), []string{attemptID})
	pool.Wait()

	require.Equal(t, 3, submitter.callCount())
	attempt, err := st.GetRemovalAttempt(attemptID)
	require.NoError(t, err)
	require.Equal(t, models.RemovalSubmitted, attempt.Status)
}

func TestProcessBatchExhaustedRetriesFail(t *testing.T) {
	submitter := &scriptedSubmitter{script: []submission{
		{err: contextlessErr("site down")},
	}}
	pool, st := newTestPool(t, submitter, fullProfile())
	attemptID := seedAttempt(t, st)

	pool.ProcessBatch(context.Background(), []string{attemptID})
	pool.Wait()

	require.Equal(t, 3, submitter.callCount())
	attempt, err := st.GetRemovalAttempt(attemptID)
	require.NoError(t, err)
	require.Equal(t, models.RemovalFailed, attempt.Status)
	require.Equal(t, "site down", attempt.ErrorMessage)
}

func TestRetryOnlyAcceptsFailedAttempts(t *testing.T) {
	submitter := &scriptedSubmitter{script: []submission{
		{err: contextlessErr("down")},
		{err: contextlessErr("down")},
		{err: contextlessErr("down")},
		{outcome: models.Submitted()},
	}}
	pool, st := newTestPool(t, submitter, fullProfile())
	attemptID := seedAttempt(t, st)

	// Pending attempt is not retryable
	require.Error(t, pool.Retry(context.Background(), attemptID))

	pool.ProcessBatch(context.Background(), []string{attemptID})
	pool.Wait()
	attempt, err := st.GetRemovalAttempt(attemptID)
	require.NoError(t, err)
	require.Equal(t, models.RemovalFailed, attempt.Status)

	require.NoError(t, pool.Retry(context.Background(), attemptID))
	pool.Wait()

	attempt, err = st.GetRemovalAttempt(attemptID)
	require.NoError(t, err)
	require.Equal(t, models.RemovalSubmitted, attempt.Status)

	// Submitted is terminal for Retry as well
	require.Error(t, pool.Retry(context.Background(), attemptID))
}

func TestRetryEventNamesAttemptAndBroker(t *testing.T) {
	submitter := &scriptedSubmitter{script: []submission{
		{err: contextlessErr("down")},
		{err: contextlessErr("down")},
		{err: contextlessErr("down")},
		{outcome: models.Submitted()},
	}}
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	st, err := store.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	hub := events.NewHub()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	cfg := models.RemovalConfig{
		MaxConcurrentSubmissions: 3,
		MaxAttempts:              3,
		StaleProcessingAfter:     30 * time.Minute,
	}
	pool := NewPool(st, broker.NewRegistry(webFormBroker()), stubProfiles{fields: fullProfile()},
		submitter, hub, utils.NewMetrics(false), cfg, logger)
	pool.SetSleeper(func(ctx context.Context, d time.Duration) error { return nil })

	attemptID := seedAttempt(t, st)
	pool.ProcessBatch(context.Background(), []string{attemptID})
	pool.Wait()

	require.NoError(t, pool.Retry(context.Background(), attemptID))
	pool.Wait()

	var retries []events.RemovalData
drain:
	for {
		select {
		case ev := <-sub:
			if ev.Type != events.KindRemovalRetry {
				continue
			}
			var data events.RemovalData
			require.NoError(t, json.Unmarshal(ev.Data, &data))
			retries = append(retries, data)
		default:
			break drain
		}
	}
	require.Len(t, retries, 1)
	require.Equal(t, attemptID, retries[0].AttemptID)
	require.Equal(t, "wf", retries[0].BrokerID)
}

func TestCreateRemovalAttemptsGuards(t *testing.T) {
	pool, st := newTestPool(t, &scriptedSubmitter{script: []submission{{outcome: models.Submitted()}}}, fullProfile())
	attemptID := seedAttempt(t, st)

	attempt, err := st.GetRemovalAttempt(attemptID)
	require.NoError(t, err)

	// the finding is already linked to its attempt
	_, err = pool.CreateRemovalAttempts([]string{attempt.FindingID})
	require.Error(t, err)
}

type contextlessErr string

func (e contextlessErr) Error() string { return string(e) }
