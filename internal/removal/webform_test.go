package removal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/delist-sh/delist/internal/broker"
	"github.com/delist-sh/delist/internal/browser"
	"github.com/delist-sh/delist/pkg/models"
)

// fakeSession is an in-memory browser.Actions: selectors listed in
// present behave as found, everything else times out.
type fakeSession struct {
	present   map[string]bool
	fills     map[string]string
	clicked   []string
	navigated []string
	shot      []byte
	navErr    error
	closed    bool
}

func newFakeSession(present ...string) *fakeSession {
	p := make(map[string]bool, len(present))
	for _, sel := range present {
		p[sel] = true
	}
	return &fakeSession{present: p, fills: map[string]string{}, shot: []byte{0x89}}
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return f.navErr
}

func (f *fakeSession) Fill(selector, value string) error {
	f.fills[selector] = value
	return nil
}

func (f *fakeSession) Click(selector string) error {
	f.clicked = append(f.clicked, selector)
	return nil
}

func (f *fakeSession) WaitFor(selector string, timeout time.Duration) error {
	if f.present[selector] {
		return nil
	}
	return &notFoundErr{selector}
}

func (f *fakeSession) ExtractText(selector string) (string, error) {
	if f.present[selector] {
		return "something went wrong", nil
	}
	return "", &notFoundErr{selector}
}

func (f *fakeSession) Content() (string, error)    { return "<html></html>", nil }
func (f *fakeSession) Screenshot() ([]byte, error) { return f.shot, nil }
func (f *fakeSession) Close() error                { f.closed = true; return nil }

type notFoundErr struct{ selector string }

func (e *notFoundErr) Error() string { return "not found: " + e.selector }

func submitterFor(session *fakeSession) *FormSubmitter {
	return NewFormSubmitter(func(ctx context.Context) (browser.Actions, error) {
		return session, nil
	}, nil)
}

func formBroker(form broker.FormSelectors) *broker.Definition {
	def := webFormBroker()
	def.Removal.Form = &form
	return def
}

func submissionFields() map[string]string {
	return map[string]string{
		models.FieldListingURL: "https://wf.test/people/john-doe",
		models.FieldEmail:      "john@example.com",
		models.FieldFirstName:  "John",
		models.FieldLastName:   "Doe",
	}
}

func TestFormSubmitterFillsAndSubmits(t *testing.T) {
	session := newFakeSession("div.done")
	sub := submitterFor(session)

	def := formBroker(broker.FormSelectors{
		ListingURLInput: "input.url",
		EmailInput:      "input.email",
		FirstNameInput:  "input.first",
		LastNameInput:   "input.last",
		SubmitButton:    "button.go",
		SuccessMarker:   "div.done",
	})

	outcome, shot, err := sub.Submit(context.Background(), def, submissionFields())
	require.NoError(t, err)
	require.Equal(t, models.OutcomeSubmitted, outcome.Kind)
	require.NotNil(t, shot)

	require.Equal(t, []string{"https://wf.test/optout"}, session.navigated)
	require.Equal(t, "https://wf.test/people/john-doe", session.fills["input.url"])
	require.Equal(t, "john@example.com", session.fills["input.email"])
	require.Equal(t, "John", session.fills["input.first"])
	require.Equal(t, "Doe", session.fills["input.last"])
	require.Equal(t, []string{"button.go"}, session.clicked)
	require.True(t, session.closed)
}

func TestFormSubmitterCaptchaFrameBlocksSubmission(t *testing.T) {
	session := newFakeSession("iframe.captcha")
	sub := submitterFor(session)

	def := formBroker(broker.FormSelectors{
		SubmitButton: "button.go",
		CaptchaFrame: "iframe.captcha",
	})

	outcome, shot, err := sub.Submit(context.Background(), def, submissionFields())
	require.NoError(t, err)
	require.Equal(t, models.OutcomeRequiresCaptcha, outcome.Kind)
	require.Equal(t, "https://wf.test/optout", outcome.CaptchaURL)
	require.NotNil(t, shot)
	require.Empty(t, session.clicked)
}

func TestFormSubmitterErrorMarkerIsRetryable(t *testing.T) {
	session := newFakeSession("div.error")
	sub := submitterFor(session)

	def := formBroker(broker.FormSelectors{
		SubmitButton: "button.go",
		ErrorMarker:  "div.error",
	})

	_, _, err := sub.Submit(context.Background(), def, submissionFields())
	require.Error(t, err)
	require.Contains(t, err.Error(), "form rejected submission")
}

func TestFormSubmitterEmailVerificationBroker(t *testing.T) {
	session := newFakeSession()
	sub := submitterFor(session)

	def := formBroker(broker.FormSelectors{SubmitButton: "button.go"})
	def.Removal.RequiresEmailVerification = true
	def.Removal.VerificationEmail = "noreply@wf.test"

	outcome, _, err := sub.Submit(context.Background(), def, submissionFields())
	require.NoError(t, err)
	require.Equal(t, models.OutcomeRequiresEmailVerification, outcome.Kind)
	require.Equal(t, "noreply@wf.test", outcome.VerificationEmail)
}

func TestFormSubmitterAccountBrokerNeverOpensBrowser(t *testing.T) {
	session := newFakeSession()
	sub := submitterFor(session)

	def := webFormBroker()
	def.Removal.RequiresAccount = true

	outcome, shot, err := sub.Submit(context.Background(), def, submissionFields())
	require.NoError(t, err)
	require.Equal(t, models.OutcomeRequiresAccountCreation, outcome.Kind)
	require.Nil(t, shot)
	require.Empty(t, session.navigated)
}

func TestFormSubmitterManualAndEmailKinds(t *testing.T) {
	session := newFakeSession()
	sub := submitterFor(session)

	manual := webFormBroker()
	manual.Removal = broker.RemovalMethod{Kind: broker.RemovalManual, Instructions: "call them"}
	outcome, _, err := sub.Submit(context.Background(), manual, submissionFields())
	require.NoError(t, err)
	require.Equal(t, models.OutcomeFailed, outcome.Kind)

	email := webFormBroker()
	email.Removal = broker.RemovalMethod{Kind: broker.RemovalEmail, Email: "privacy@wf.test"}
	outcome, _, err = sub.Submit(context.Background(), email, submissionFields())
	require.NoError(t, err)
	require.Equal(t, models.OutcomeFailed, outcome.Kind)
	require.Contains(t, outcome.Reason, "privacy@wf.test")
}
