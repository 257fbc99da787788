package removal

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/delist-sh/delist/internal/broker"
	"github.com/delist-sh/delist/internal/browser"
	"github.com/delist-sh/delist/pkg/models"
)

// SessionOpener hands out a fresh browser session per submission.
type SessionOpener func(ctx context.Context) (browser.Actions, error)

// FormSubmitter files opt-out requests through broker web forms. It
// returns a classified outcome plus, when one could be captured, a
// screenshot of the page at the decisive moment.
type FormSubmitter struct {
	open        SessionOpener
	logger      *logrus.Logger
	markerWait  time.Duration
	captchaWait time.Duration
}

func NewFormSubmitter(open SessionOpener, logger *logrus.Logger) *FormSubmitter {
	if logger == nil {
		logger = logrus.New()
	}
	return &FormSubmitter{
		open:        open,
		logger:      logger,
		markerWait:  10 * time.Second,
		captchaWait: 2 * time.Second,
	}
}

// Submit runs one submission against the broker's removal method. A
// returned error is transient and worth retrying; user-action and
// terminal conditions come back as outcomes with a nil error.
func (s *FormSubmitter) Submit(ctx context.Context, def *broker.Definition, fields map[string]string) (models.Outcome, []byte, error) {
	if def.Removal.RequiresAccount {
		return models.RequiresAccountCreation(), nil, nil
	}
	switch def.Removal.Kind {
	case broker.RemovalWebForm:
		return s.submitForm(ctx, def, fields)
	case broker.RemovalEmail:
		return models.FailedOutcome(fmt.Sprintf("email removal not automated, write to %s", def.Removal.Email)), nil, nil
	case broker.RemovalManual:
		return models.FailedOutcome("manual removal required"), nil, nil
	default:
		return models.FailedOutcome(fmt.Sprintf("unknown removal kind %q", def.Removal.Kind)), nil, nil
	}
}

func (s *FormSubmitter) submitForm(ctx context.Context, def *broker.Definition, fields map[string]string) (models.Outcome, []byte, error) {
	session, err := s.open(ctx)
	if err != nil {
		return models.Outcome{}, nil, err
	}
	defer func() { _ = session.Close() }()

	form := def.Removal.Form
	if err := session.Navigate(ctx, def.Removal.FormURL); err != nil {
		return models.Outcome{}, nil, err
	}

	// A challenge frame on the form page blocks the whole submission.
	if form.CaptchaFrame != "" {
		if err := session.WaitFor(form.CaptchaFrame, s.captchaWait); err == nil {
			shot := s.screenshot(session)
			return models.RequiresCaptcha(def.Removal.FormURL), shot, nil
		}
	}

	inputs := []struct {
		selector string
		field    string
	}{
		{form.ListingURLInput, models.FieldListingURL},
		{form.EmailInput, models.FieldEmail},
		{form.FirstNameInput, models.FieldFirstName},
		{form.LastNameInput, models.FieldLastName},
	}
	for _, in := range inputs {
		if in.selector == "" {
			continue
		}
		if err := session.Fill(in.selector, fields[in.field]); err != nil {
			return models.Outcome{}, nil, fmt.Errorf("fill %s: %w", in.field, err)
		}
	}
	if form.FullNameInput != "" {
		full := fields[models.FieldFirstName] + " " + fields[models.FieldLastName]
		if err := session.Fill(form.FullNameInput, full); err != nil {
			return models.Outcome{}, nil, fmt.Errorf("fill full name: %w", err)
		}
	}

	if err := session.Click(form.SubmitButton); err != nil {
		return models.Outcome{}, nil, fmt.Errorf("submit form: %w", err)
	}

	if form.ErrorMarker != "" {
		if err := session.WaitFor(form.ErrorMarker, s.captchaWait); err == nil {
			text, _ := session.ExtractText(form.ErrorMarker)
			shot := s.screenshot(session)
			return models.Outcome{}, shot, fmt.Errorf("form rejected submission: %s", text)
		}
	}
	if form.SuccessMarker != "" {
		if err := session.WaitFor(form.SuccessMarker, s.markerWait); err != nil {
			return models.Outcome{}, s.screenshot(session), fmt.Errorf("no confirmation after submit: %w", err)
		}
	}

	shot := s.screenshot(session)
	if def.Removal.RequiresEmailVerification {
		return models.RequiresEmailVerification(def.Removal.VerificationEmail), shot, nil
	}
	return models.Submitted(), shot, nil
}

func (s *FormSubmitter) screenshot(session browser.Actions) []byte {
	shot, err := session.Screenshot()
	if err != nil {
		s.logger.WithError(err).Debug("Screenshot capture failed")
		return nil
	}
	return shot
}
