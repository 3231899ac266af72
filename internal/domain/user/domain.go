package user

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kzhama/todoauth/internal/domain/auth"
)

var ErrNotFound = errors.New("user not found")

// User is the account identity the auth core produces and consumes.
// The password hash lives in the repository, not on the entity.
type User struct {
	ID          uuid.UUID
	FamilyName  FamilyName
	GivenName   GivenName
	Email       Email
	Active      bool
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const maxNameChars = 100

// FamilyName and GivenName are obtained only through their fallible
// constructors, so a held value is always within bounds.
type FamilyName struct{ v string }

func NewFamilyName(v string) (FamilyName, error) {
	v, err := boundedName("family name", v)
	if err != nil {
		return FamilyName{}, err
	}
	return FamilyName{v: v}, nil
}

func (n FamilyName) String() string { return n.v }

type GivenName struct{ v string }

func NewGivenName(v string) (GivenName, error) {
	v, err := boundedName("given name", v)
	if err != nil {
		return GivenName{}, err
	}
	return GivenName{v: v}, nil
}

func (n GivenName) String() string { return n.v }

func boundedName(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if n := utf8.RuneCountInString(v); n < 1 || n > maxNameChars {
		return "", auth.Validation(fmt.Sprintf("%s must be 1..%d characters", field, maxNameChars))
	}
	return v, nil
}

type Email struct{ v string }

func NewEmail(v string) (Email, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return Email{}, auth.Validation("email address is not valid")
	}
	return Email{v: v}, nil
}

func (e Email) String() string { return e.v }
