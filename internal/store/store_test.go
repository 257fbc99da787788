package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/delist-sh/delist/pkg/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	st, err := Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// seedFinding writes a scan job, one broker scan and one finding, and
// returns the finding.
func seedFinding(t *testing.T, st *Store, listingURL string) *models.Finding {
	t.Helper()
	now := time.Now().UTC()

	job := &models.ScanJob{
		ID: uuid.New().String(), ProfileID: "profile-1",
		StartedAt: now, Status: models.ScanJobInProgress, TotalBrokers: 1,
	}
	require.NoError(t, st.CreateScanJob(job))

	bs := models.BrokerScan{
		ID: uuid.New().String(), ScanJobID: job.ID, BrokerID: "b1",
		Status: models.BrokerScanInProgress, StartedAt: now,
	}
	require.NoError(t, st.CreateBrokerScans([]models.BrokerScan{bs}))

	f := &models.Finding{
		ID: uuid.New().String(), BrokerScanID: bs.ID, ScanJobID: job.ID,
		BrokerID: "b1", ProfileID: "profile-1",
		ListingURL:         listingURL,
		VerificationStatus: models.VerificationPending,
		Extracted:          models.ExtractedData{Name: "John Doe", Age: 42},
		DiscoveredAt:       now,
	}
	inserted, err := st.InsertFinding(f)
	require.NoError(t, err)
	require.True(t, inserted)
	return f
}

func TestInsertFindingDeduplicatesWithinJob(t *testing.T) {
	st := testStore(t)
	f := seedFinding(t, st, "https://b1.test/people/1")

	dup := *f
	dup.ID = uuid.New().String()
	inserted, err := st.InsertFinding(&dup)
	require.NoError(t, err)
	require.False(t, inserted)

	findings, err := st.ListFindings(f.ScanJobID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	require.Equal(t, f.ID, findings[0].ID)
	require.Equal(t, "John Doe", findings[0].Extracted.Name)
}

func TestSetVerificationIsTerminal(t *testing.T) {
	st := testStore(t)
	f := seedFinding(t, st, "https://b1.test/people/1")
	now := time.Now().UTC()

	require.NoError(t, st.SetVerification(f.ID, models.VerificationConfirmed, now))

	got, err := st.GetFinding(f.ID)
	require.NoError(t, err)
	require.Equal(t, models.VerificationConfirmed, got.VerificationStatus)
	require.True(t, got.VerifiedByUser)
	require.NotNil(t, got.VerifiedAt)

	err = st.SetVerification(f.ID, models.VerificationRejected, now)
	require.ErrorIs(t, err, ErrVerificationFinal)

	// only Confirmed/Rejected are valid targets
	require.Error(t, st.SetVerification(f.ID, models.VerificationPending, now))
}

func TestCreateAttemptForFindingLinksOnce(t *testing.T) {
	st := testStore(t)
	f := seedFinding(t, st, "https://b1.test/people/1")
	now := time.Now().UTC()

	// unconfirmed findings cannot get attempts
	_, err := st.CreateAttemptForFinding(f.ID, now)
	require.Error(t, err)

	require.NoError(t, st.SetVerification(f.ID, models.VerificationConfirmed, now))
	attempt, err := st.CreateAttemptForFinding(f.ID, now)
	require.NoError(t, err)
	require.Equal(t, models.RemovalPending, attempt.Status)

	got, err := st.GetFinding(f.ID)
	require.NoError(t, err)
	require.Equal(t, attempt.ID, got.RemovalAttemptID)

	_, err = st.CreateAttemptForFinding(f.ID, now)
	require.ErrorIs(t, err, ErrAttemptLinked)
}

func TestRemovalStatusTransitions(t *testing.T) {
	st := testStore(t)
	f := seedFinding(t, st, "https://b1.test/people/1")
	now := time.Now().UTC()
	require.NoError(t, st.SetVerification(f.ID, models.VerificationConfirmed, now))
	attempt, err := st.CreateAttemptForFinding(f.ID, now)
	require.NoError(t, err)

	// Pending -> Submitted skips Processing and is rejected
	require.ErrorIs(t, st.MarkSubmitted(attempt.ID, now), ErrBadStatusTransfer)

	require.NoError(t, st.MarkProcessing(attempt.ID, now))
	// double claim loses
	require.ErrorIs(t, st.MarkProcessing(attempt.ID, now), ErrBadStatusTransfer)

	require.NoError(t, st.MarkSubmitted(attempt.ID, now))
	got, err := st.GetRemovalAttempt(attempt.ID)
	require.NoError(t, err)
	require.Equal(t, models.RemovalSubmitted, got.Status)
	require.NotNil(t, got.SubmittedAt)

	// Completed only from Submitted
	require.NoError(t, st.MarkCompleted(attempt.ID, now))
	got, err = st.GetRemovalAttempt(attempt.ID)
	require.NoError(t, err)
	require.Equal(t, models.RemovalCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestQueuesAndOrdering(t *testing.T) {
	st := testStore(t)

	mkAttempt := func(url string, createdAt time.Time) *models.RemovalAttempt {
		f := seedFinding(t, st, url)
		require.NoError(t, st.SetVerification(f.ID, models.VerificationConfirmed, createdAt))
		a, err := st.CreateAttemptForFinding(f.ID, createdAt)
		require.NoError(t, err)
		return a
	}

	base := time.Now().UTC().Add(-time.Hour)
	older := mkAttempt("https://b1.test/people/1", base)
	newer := mkAttempt("https://b1.test/people/2", base.Add(10*time.Minute))
	failedOld := mkAttempt("https://b1.test/people/3", base)
	failedNew := mkAttempt("https://b1.test/people/4", base.Add(20*time.Minute))

	for _, a := range []*models.RemovalAttempt{older, newer} {
		require.NoError(t, st.MarkProcessing(a.ID, a.CreatedAt))
		require.NoError(t, st.MarkCaptchaBlocked(a.ID, "https://b1.test/captcha", a.CreatedAt))
	}
	for _, a := range []*models.RemovalAttempt{failedOld, failedNew} {
		require.NoError(t, st.MarkProcessing(a.ID, a.CreatedAt))
		require.NoError(t, st.MarkFailed(a.ID, "site down", a.CreatedAt))
	}

	captcha, err := st.CaptchaQueue()
	require.NoError(t, err)
	require.Len(t, captcha, 2)
	require.Equal(t, older.ID, captcha[0].ID) // oldest first
	require.Equal(t, newer.ID, captcha[1].ID)
	require.True(t, captcha[0].CaptchaBlocked())

	failed, err := st.FailedQueue()
	require.NoError(t, err)
	require.Len(t, failed, 2)
	require.Equal(t, failedNew.ID, failed[0].ID) // newest first
	require.Equal(t, failedOld.ID, failed[1].ID)

	// captcha-parked attempts do not show up as pending work
	pending, err := st.PendingAttempts()
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestReconcileStale(t *testing.T) {
	st := testStore(t)
	now := time.Now().UTC()

	f := seedFinding(t, st, "https://b1.test/people/1")
	require.NoError(t, st.SetVerification(f.ID, models.VerificationConfirmed, now))
	stale, err := st.CreateAttemptForFinding(f.ID, now)
	require.NoError(t, err)

	f2 := seedFinding(t, st, "https://b1.test/people/2")
	require.NoError(t, st.SetVerification(f2.ID, models.VerificationConfirmed, now))
	fresh, err := st.CreateAttemptForFinding(f2.ID, now)
	require.NoError(t, err)

	// one claimed an hour ago, one just now
	require.NoError(t, st.MarkProcessing(stale.ID, now.Add(-time.Hour)))
	require.NoError(t, st.MarkProcessing(fresh.ID, now))

	n, err := st.ReconcileStale(30*time.Minute, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := st.GetRemovalAttempt(stale.ID)
	require.NoError(t, err)
	require.Equal(t, models.RemovalPending, got.Status)

	got, err = st.GetRemovalAttempt(fresh.ID)
	require.NoError(t, err)
	require.Equal(t, models.RemovalProcessing, got.Status)
}

func TestEvidenceRoundTrip(t *testing.T) {
	st := testStore(t)
	now := time.Now().UTC()

	f := seedFinding(t, st, "https://b1.test/people/1")
	require.NoError(t, st.SetVerification(f.ID, models.VerificationConfirmed, now))
	attempt, err := st.CreateAttemptForFinding(f.ID, now)
	require.NoError(t, err)

	_, err = st.AddEvidence(attempt.ID, EvidenceScreenshot, []byte{0x89, 0x50, 0x4e, 0x47}, now)
	require.NoError(t, err)

	evidence, err := st.ListEvidence(attempt.ID)
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	require.Equal(t, EvidenceScreenshot, evidence[0].Kind)
	require.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, evidence[0].Screenshot)
}

func TestProfileBlobs(t *testing.T) {
	st := testStore(t)
	now := time.Now().UTC()

	require.NoError(t, st.SaveProfileBlob("p1", []byte("ciphertext"), now))
	blob, err := st.GetProfileBlob("p1")
	require.NoError(t, err)
	require.Equal(t, []byte("ciphertext"), blob)

	ids, err := st.ListProfileIDs()
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, ids)

	require.NoError(t, st.DeleteProfileBlob("p1"))
	_, err = st.GetProfileBlob("p1")
	require.ErrorIs(t, err, ErrProfileNotFound)
}
