package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPacerRejectsBurstToSameDomain(t *testing.T) {
	p := NewDomainPacer(time.Minute, nil)

	require.NoError(t, p.Allow("https://spokeo.test/search?q=doe"))
	require.ErrorIs(t, p.Allow("https://spokeo.test/people/1"), ErrRateLimited)
}

func TestPacerDomainsAreIndependent(t *testing.T) {
	p := NewDomainPacer(time.Minute, nil)

	require.NoError(t, p.Allow("https://spokeo.test/search"))
	require.NoError(t, p.Allow("https://whitepages.test/search"))
	require.ErrorIs(t, p.Allow("https://whitepages.test/again"), ErrRateLimited)
}

func TestPacerSubdomainsShareBudget(t *testing.T) {
	p := NewDomainPacer(time.Minute, nil)

	require.NoError(t, p.Allow("https://www.spokeo.com/search"))
	require.ErrorIs(t, p.Allow("https://api.spokeo.com/v1/lookup"), ErrRateLimited)
}

func TestPacerRecoversAfterDelay(t *testing.T) {
	p := NewDomainPacer(20*time.Millisecond, nil)

	require.NoError(t, p.Allow("https://spokeo.test/a"))
	require.ErrorIs(t, p.Allow("https://spokeo.test/b"), ErrRateLimited)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, p.Allow("https://spokeo.test/c"))
}

func TestPacerUnparsableURLFallsBack(t *testing.T) {
	p := NewDomainPacer(time.Minute, nil)

	require.NoError(t, p.Allow("not a url"))
	require.ErrorIs(t, p.Allow("not a url"), ErrRateLimited)
}
