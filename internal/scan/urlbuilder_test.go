package scan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/delist-sh/delist/pkg/models"
)

type fakeProfile map[string]string

func (f fakeProfile) ProfileID() string { return "profile-1" }

func (f fakeProfile) Field(name string) (string, bool) {
	v, ok := f[name]
	return v, ok
}

func TestBuildSearchURL(t *testing.T) {
	tests := []struct {
		name     string
		template string
		profile  fakeProfile
		want     string
		missing  []string
	}{
		{
			name:     "names slugified, state code untouched",
			template: "https://x.test/{first}-{last}/{state}/{city}",
			profile: fakeProfile{
				models.FieldFirstName: "John",
				models.FieldLastName:  "Doe",
				models.FieldState:     "CA",
				models.FieldCity:      "Springfield",
			},
			want: "https://x.test/john-doe/CA/springfield",
		},
		{
			name:     "accents folded multi-word hyphenated",
			template: "https://x.test/search/{first}/{last}",
			profile: fakeProfile{
				models.FieldFirstName: "José",
				models.FieldLastName:  "García Márquez",
			},
			want: "https://x.test/search/jose/garcia-marquez",
		},
		{
			name:     "zip and age pass through",
			template: "https://x.test/{last}?zip={zip}&age={age}",
			profile: fakeProfile{
				models.FieldLastName: "Smith",
				models.FieldZip:      "62704",
				models.FieldAge:      "42",
			},
			want: "https://x.test/smith?zip=62704&age=42",
		},
		{
			name:     "missing field reported",
			template: "https://x.test/{first}-{last}/{city}",
			profile: fakeProfile{
				models.FieldFirstName: "John",
			},
			missing: []string{models.FieldCity, models.FieldLastName},
		},
		{
			name:     "blank value counts as missing",
			template: "https://x.test/{first}",
			profile: fakeProfile{
				models.FieldFirstName: "   ",
			},
			missing: []string{models.FieldFirstName},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildSearchURL(tt.template, tt.profile)
			if len(tt.missing) > 0 {
				var insufficient *InsufficientProfileDataError
				require.ErrorAs(t, err, &insufficient)
				require.Equal(t, tt.missing, insufficient.Missing)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRequiredTemplateFields(t *testing.T) {
	fields := RequiredTemplateFields("https://x.test/{first}-{last}/{state}/{city}")
	require.Equal(t, []string{
		models.FieldCity, models.FieldFirstName, models.FieldLastName, models.FieldState,
	}, fields)

	require.Empty(t, RequiredTemplateFields("https://x.test/static"))
}
