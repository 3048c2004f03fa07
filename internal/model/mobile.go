package model

import (
	"regexp"
	"strings"
)

var mobilePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)

// NormalizeMobile strips formatting and the Indian country/trunk prefix.
// The result is only meaningful if ValidMobile reports true for it.
func NormalizeMobile(s string) string {
	r := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	m := r.Replace(strings.TrimSpace(s))
	m = strings.TrimPrefix(m, "+")
	if len(m) == 12 && strings.HasPrefix(m, "91") {
		m = m[2:]
	}
	if len(m) == 11 && strings.HasPrefix(m, "0") {
		m = m[1:]
	}
	return m
}

// ValidMobile reports whether m is a normalized 10 digit mobile number.
func ValidMobile(m string) bool {
	return mobilePattern.MatchString(m)
}

// MaskMobile masks a mobile number for logging (e.g. 98******10).
func MaskMobile(mobile string) string {
	if len(mobile) <= 4 {
		return "****"
	}
	return mobile[:2] + strings.Repeat("*", len(mobile)-4) + mobile[len(mobile)-2:]
}
