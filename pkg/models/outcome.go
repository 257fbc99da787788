package models

import "fmt"

// OutcomeKind discriminates removal submission results.
type OutcomeKind string

const (
	OutcomeSubmitted                 OutcomeKind = "submitted"
	OutcomeRequiresEmailVerification OutcomeKind = "requires_email_verification"
	OutcomeRequiresCaptcha           OutcomeKind = "requires_captcha"
	OutcomeRequiresAccountCreation   OutcomeKind = "requires_account_creation"
	OutcomeFailed                    OutcomeKind = "failed"
)

// Outcome is the classified result of one removal submission.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`
	// CaptchaURL is set for OutcomeRequiresCaptcha.
	CaptchaURL string `json:"captcha_url,omitempty"`
	// VerificationEmail is set for OutcomeRequiresEmailVerification.
	VerificationEmail string `json:"verification_email,omitempty"`
	// Reason is set for OutcomeFailed.
	Reason string `json:"reason,omitempty"`
}

func Submitted() Outcome { return Outcome{Kind: OutcomeSubmitted} }

func RequiresEmailVerification(email string) Outcome {
	return Outcome{Kind: OutcomeRequiresEmailVerification, VerificationEmail: email}
}

func RequiresCaptcha(url string) Outcome {
	return Outcome{Kind: OutcomeRequiresCaptcha, CaptchaURL: url}
}

func RequiresAccountCreation() Outcome {
	return Outcome{Kind: OutcomeRequiresAccountCreation}
}

func FailedOutcome(reason string) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason}
}

// RequiresUserAction reports whether a human has to intervene before the
// attempt can progress.
func (o Outcome) RequiresUserAction() bool {
	switch o.Kind {
	case OutcomeRequiresCaptcha, OutcomeRequiresEmailVerification, OutcomeRequiresAccountCreation:
		return true
	}
	return false
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeRequiresCaptcha:
		return fmt.Sprintf("%s(%s)", o.Kind, o.CaptchaURL)
	case OutcomeFailed:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
	default:
		return string(o.Kind)
	}
}
