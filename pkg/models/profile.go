package models

// Profile field names used by broker search methods and removal forms.
const (
	FieldFirstName  = "first_name"
	FieldMiddleName = "middle_name"
	FieldLastName   = "last_name"
	FieldEmail      = "email"
	FieldPhone      = "phone"
	FieldCity       = "city"
	FieldState      = "state"
	FieldZip        = "zip"
	FieldAge        = "age"
)

// FieldListingURL is the one removal-form field that comes from the
// finding rather than the profile.
const FieldListingURL = "listing_url"

// ProfileAccessor returns decrypted named string fields by key. The engine
// never sees ciphertext or key material; the vault collaborator implements
// this over its encrypted profile storage.
type ProfileAccessor interface {
	ProfileID() string
	// Field returns the decrypted value and whether the profile has it.
	Field(name string) (string, bool)
}

// ProfileSource resolves a profile id to its accessor.
type ProfileSource interface {
	Profile(id string) (ProfileAccessor, error)
}
