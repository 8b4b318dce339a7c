package models

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophusers/internal/common"
)

const (
	maxNameLength    = 100
	maxAddressLength = 200
	maxPhoneLength   = 32
	maxBioLength     = 500
	maxPictureLength = 2048
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{4,31}$`)

// ProfileUpdate is a partial profile update: nil fields are left untouched,
// an empty string clears the field.
type ProfileUpdate struct {
	Address *string `json:"address,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Bio     *string `json:"bio,omitempty"`
}

// IsEmpty reports whether the update carries no fields.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Address == nil && u.Phone == nil && u.Bio == nil
}

// Normalize trims surrounding whitespace from every present field.
func (u ProfileUpdate) Normalize() ProfileUpdate {
	return ProfileUpdate{Address: trimmed(u.Address), Phone: trimmed(u.Phone), Bio: trimmed(u.Bio)}
}

// Validate checks the normalized update. The returned error is a
// common.FieldErrors and matches common.ErrValidation.
func (u ProfileUpdate) Validate() error {
	var fe common.FieldErrors
	u = u.Normalize()

	checkText(&fe, "address", u.Address, maxAddressLength)
	checkText(&fe, "bio", u.Bio, maxBioLength)
	if checkText(&fe, "phone", u.Phone, maxPhoneLength) && u.Phone != nil && *u.Phone != "" && !phonePattern.MatchString(*u.Phone) {
		fe = append(fe, common.FieldError{Field: "phone", Message: "invalid phone number"})
	}

	if len(fe) > 0 {
		return fe
	}
	return nil
}

// Apply writes the normalized update into p.
func (u ProfileUpdate) Apply(p *Profile) {
	u = u.Normalize()
	if u.Address != nil {
		p.Address = *u.Address
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.Bio != nil {
		p.Bio = *u.Bio
	}
}

// AccountUpdate is a partial update of the account fields a user may change.
type AccountUpdate struct {
	Name    *string `json:"name,omitempty"`
	Picture *string `json:"picture,omitempty"`
}

func (u AccountUpdate) IsEmpty() bool {
	return u.Name == nil && u.Picture == nil
}

func (u AccountUpdate) Normalize() AccountUpdate {
	return AccountUpdate{Name: trimmed(u.Name), Picture: trimmed(u.Picture)}
}

func (u AccountUpdate) Validate() error {
	var fe common.FieldErrors
	u = u.Normalize()

	if checkText(&fe, "name", u.Name, maxNameLength) && u.Name != nil && *u.Name == "" {
		fe = append(fe, common.FieldError{Field: "name", Message: "must not be empty"})
	}
	if u.Picture != nil && *u.Picture != "" {
		if utf8.RuneCountInString(*u.Picture) > maxPictureLength {
			fe = append(fe, common.FieldError{Field: "picture", Message: "too long"})
		} else if pu, err := url.Parse(*u.Picture); err != nil || (pu.Scheme != "http" && pu.Scheme != "https") || pu.Host == "" {
			fe = append(fe, common.FieldError{Field: "picture", Message: "must be an http(s) URL"})
		}
	}

	if len(fe) > 0 {
		return fe
	}
	return nil
}

func (u AccountUpdate) Apply(user *User) {
	u = u.Normalize()
	if u.Name != nil {
		user.Name = *u.Name
	}
	if u.Picture != nil {
		user.Picture = *u.Picture
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// checkText appends length and markup violations; it reports whether the
// field passed those checks.
func checkText(fe *common.FieldErrors, field string, v *string, max int) bool {
	if v == nil {
		return true
	}
	if utf8.RuneCountInString(*v) > max {
		*fe = append(*fe, common.FieldError{Field: field, Message: "too long"})
		return false
	}
	if strings.ContainsAny(*v, "<>") {
		*fe = append(*fe, common.FieldError{Field: field, Message: "HTML tags are not allowed"})
		return false
	}
	return true
}
