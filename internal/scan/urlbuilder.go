package scan

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/delist-sh/delist/pkg/models"
)

// Search template placeholders. Name-ish values are slugified the way
// people-search sites build their paths; codes pass through untouched.
var placeholderFields = map[string]struct {
	field string
	slug  bool
}{
	"{first}": {models.FieldFirstName, true},
	"{last}":  {models.FieldLastName, true},
	"{city}":  {models.FieldCity, true},
	"{state}": {models.FieldState, false},
	"{zip}":   {models.FieldZip, false},
	"{age}":   {models.FieldAge, false},
}

var residualPlaceholder = regexp.MustCompile(`\{[a-z_]+\}`)

// BuildSearchURL substitutes profile fields into a broker's search
// template. Any placeholder left unresolved means the profile cannot
// be searched on this broker.
func BuildSearchURL(template string, profile models.ProfileAccessor) (string, error) {
	out := template
	var missing []string
	for placeholder, spec := range placeholderFields {
		if !strings.Contains(out, placeholder) {
			continue
		}
		value, ok := profile.Field(spec.field)
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			missing = append(missing, spec.field)
			continue
		}
		if spec.slug {
			value = slugify(value)
		}
		out = strings.ReplaceAll(out, placeholder, value)
	}

	if len(missing) > 0 {
		return "", &InsufficientProfileDataError{Missing: sorted(missing)}
	}
	if leftover := residualPlaceholder.FindString(out); leftover != "" {
		return "", &InsufficientProfileDataError{Missing: []string{strings.Trim(leftover, "{}")}}
	}
	return out, nil
}

// RequiredTemplateFields lists the profile fields a template needs, so
// the orchestrator can precheck before scheduling a fetch.
func RequiredTemplateFields(template string) []string {
	var fields []string
	for placeholder, spec := range placeholderFields {
		if strings.Contains(template, placeholder) {
			fields = append(fields, spec.field)
		}
	}
	return sorted(fields)
}

// slugify lowercases, folds accents to ASCII and joins words with
// hyphens: "José García" becomes "jose-garcia".
func slugify(value string) string {
	folded, _, err := transform.String(transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	), value)
	if err != nil {
		folded = value
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	return strings.Join(strings.Fields(folded), "-")
}

func sorted(in []string) []string {
	sort.Strings(in)
	return in
}
