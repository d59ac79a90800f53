package section

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Section is a passcode-gated grouping of study forms.
type Section struct {
	Number       int       `json:"number"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	IsActive     bool      `json:"-"`
	PasscodeHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

func (s *Section) SetPasscode(passcode string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.PasscodeHash = hash
	return nil
}

func (s *Section) CheckPasscode(passcode string) error {
	return bcrypt.CompareHashAndPassword(s.PasscodeHash, []byte(passcode))
}

type NewSection struct {
	Number      int    `json:"number" validate:"required,min=1"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Passcode    string `json:"passcode" validate:"required,min=4"`
}
