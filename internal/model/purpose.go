package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Purpose is the declared use of an OTP challenge.
type Purpose string

const (
	PurposeRegister       Purpose = "REGISTER"
	PurposeLogin          Purpose = "LOGIN"
	PurposeForgotPassword Purpose = "FORGOT_PASSWORD"
)

// Purposes lists every recognised purpose.
var Purposes = []Purpose{PurposeRegister, PurposeLogin, PurposeForgotPassword}

// ParsePurpose accepts the recognised purposes, case-insensitively.
func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown purpose %q", s)
	}
	return p, nil
}

func (p Purpose) Valid() bool {
	switch p {
	case PurposeRegister, PurposeLogin, PurposeForgotPassword:
		return true
	}
	return false
}

// RequiresAccount reports whether the purpose only makes sense for an existing account.
func (p Purpose) RequiresAccount() bool {
	return p == PurposeLogin || p == PurposeForgotPassword
}

func (p Purpose) String() string { return string(p) }

func (p *Purpose) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParsePurpose(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
