package accounts

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Length limits for account credentials
const (
	MinNameLength     = 3
	MinPasswordLength = 6
)

// Request asks for one new game account. Origin identifies the caller for
// the audit trail only.
type Request struct {
	AccountName string `json:"name"`
	Password    string `json:"password"`
	Origin      string `json:"-"`
}

// Normalize trims surrounding whitespace from the credentials
func (r Request) Normalize() Request {
	r.AccountName = strings.TrimSpace(r.AccountName)
	r.Password = strings.TrimSpace(r.Password)
	return r
}

// Validate checks the request without contacting the remote host
func (r Request) Validate() error {
	if utf8.RuneCountInString(r.AccountName) < MinNameLength {
		return fmt.Errorf("name must be at least %d characters", MinNameLength)
	}
	if utf8.RuneCountInString(r.Password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if err := checkText("name", r.AccountName); err != nil {
		return err
	}
	return checkText("password", r.Password)
}

func checkText(field, value string) error {
	if !utf8.ValidString(value) {
		return fmt.Errorf("%s must be valid UTF-8", field)
	}
	if strings.ContainsAny(value, "\x00\r\n") {
		return fmt.Errorf("%s must not contain control line characters", field)
	}
	return nil
}

// ValidateName checks an existing account name supplied by an operator
func ValidateName(name string) error {
	if utf8.RuneCountInString(name) < MinNameLength {
		return fmt.Errorf("name must be at least %d characters", MinNameLength)
	}
	return checkText("name", name)
}
