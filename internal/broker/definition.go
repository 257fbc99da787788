package broker

import (
	"fmt"
	"strings"
)

// SearchKind tags the variant of a broker's search method.
type SearchKind string

const (
	SearchURLTemplate SearchKind = "url_template"
	SearchWebForm     SearchKind = "web_form"
	SearchManual      SearchKind = "manual"
)

// RemovalKind tags the variant of a broker's removal method.
type RemovalKind string

const (
	RemovalWebForm RemovalKind = "web_form"
	RemovalEmail   RemovalKind = "email"
	RemovalManual  RemovalKind = "manual"
)

// SelectorSet is the broker-supplied bundle of CSS selectors used to pull
// structured fields out of a search-result page. Absence of the whole set
// is a valid state: such brokers get scanned but produce no findings and
// are flagged for manual review.
type SelectorSet struct {
	ResultsContainer string `yaml:"results_container"`
	ResultItem       string `yaml:"result_item"`
	ListingURL       string `yaml:"listing_url"`

	Name      string `yaml:"name,omitempty"`
	Age       string `yaml:"age,omitempty"`
	Location  string `yaml:"location,omitempty"`
	Phone     string `yaml:"phone,omitempty"`
	Email     string `yaml:"email,omitempty"`
	Relatives string `yaml:"relatives,omitempty"`

	CaptchaMarker   string `yaml:"captcha_marker,omitempty"`
	NoResultsMarker string `yaml:"no_results_marker,omitempty"`
}

// SearchMethod describes how a broker's listing search is driven.
type SearchMethod struct {
	Kind SearchKind `yaml:"kind"`
	// URLTemplate holds placeholders like {first}, {last}, {state}, {city}.
	URLTemplate string `yaml:"url_template,omitempty"`
	// FormURL is the entry page for web_form and manual searches.
	FormURL string `yaml:"form_url,omitempty"`
	// RequiredFields names the profile fields the search cannot run without.
	RequiredFields []string `yaml:"required_fields,omitempty"`
	// Selectors is nil when the broker's results cannot be parsed.
	Selectors *SelectorSet `yaml:"selectors,omitempty"`
}

// FormSelectors locate the inputs of a broker's opt-out form.
type FormSelectors struct {
	ListingURLInput string `yaml:"listing_url_input,omitempty"`
	EmailInput      string `yaml:"email_input,omitempty"`
	FirstNameInput  string `yaml:"first_name_input,omitempty"`
	LastNameInput   string `yaml:"last_name_input,omitempty"`
	FullNameInput   string `yaml:"full_name_input,omitempty"`
	SubmitButton    string `yaml:"submit_button"`
	CaptchaFrame    string `yaml:"captcha_frame,omitempty"`
	SuccessMarker   string `yaml:"success_marker,omitempty"`
	ErrorMarker     string `yaml:"error_marker,omitempty"`
}

// RemovalMethod describes how an opt-out request is filed with the broker.
type RemovalMethod struct {
	Kind RemovalKind `yaml:"kind"`
	// FormURL and Form apply to web_form removals.
	FormURL string         `yaml:"form_url,omitempty"`
	Form    *FormSelectors `yaml:"form,omitempty"`
	// Email applies to email removals.
	Email string `yaml:"email,omitempty"`
	// Instructions apply to manual removals.
	Instructions string `yaml:"instructions,omitempty"`
	// RequiresAccount marks brokers whose opt-out demands an account,
	// which the engine does not support.
	RequiresAccount bool `yaml:"requires_account,omitempty"`
	// RequiresEmailVerification marks brokers that send a confirmation
	// link after the form is filed. The attempt is still Submitted; the
	// user completes verification out of band.
	RequiresEmailVerification bool `yaml:"requires_email_verification,omitempty"`
	// VerificationEmail, when set, names the address the confirmation
	// arrives from so the UI can point the user at it.
	VerificationEmail string `yaml:"verification_email,omitempty"`
}

// Definition is one broker catalog entry. Definitions are read-only to the
// engine; the loader validates them once at startup.
type Definition struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"base_url"`
	Category string `yaml:"category"`
	// MinEngine is a semver constraint gating definitions written for a
	// newer selector schema.
	MinEngine string `yaml:"min_engine,omitempty"`

	Search  SearchMethod  `yaml:"search"`
	Removal RemovalMethod `yaml:"removal"`
}

// Validate checks structural invariants of a definition.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("broker definition missing id")
	}
	if strings.TrimSpace(d.BaseURL) == "" {
		return fmt.Errorf("broker %s: missing base_url", d.ID)
	}
	switch d.Search.Kind {
	case SearchURLTemplate:
		if d.Search.URLTemplate == "" {
			return fmt.Errorf("broker %s: url_template search without template", d.ID)
		}
	case SearchWebForm, SearchManual:
		if d.Search.FormURL == "" {
			return fmt.Errorf("broker %s: %s search without form_url", d.ID, d.Search.Kind)
		}
	default:
		return fmt.Errorf("broker %s: unknown search kind %q", d.ID, d.Search.Kind)
	}
	if s := d.Search.Selectors; s != nil {
		if s.ResultsContainer == "" || s.ResultItem == "" || s.ListingURL == "" {
			return fmt.Errorf("broker %s: selector set requires results_container, result_item and listing_url", d.ID)
		}
	}
	switch d.Removal.Kind {
	case RemovalWebForm:
		if d.Removal.FormURL == "" || d.Removal.Form == nil || d.Removal.Form.SubmitButton == "" {
			return fmt.Errorf("broker %s: web_form removal requires form_url and a submit_button selector", d.ID)
		}
	case RemovalEmail:
		if d.Removal.Email == "" {
			return fmt.Errorf("broker %s: email removal without address", d.ID)
		}
	case RemovalManual:
	default:
		return fmt.Errorf("broker %s: unknown removal kind %q", d.ID, d.Removal.Kind)
	}
	return nil
}
