package identity

import "strings"

// Allowlist is the set of emails permitted to take the dentist role. A
// sign-up claiming dentist with an email outside the list is demoted to
// patient instead of being rejected.
type Allowlist map[string]struct{}

// NewAllowlist builds an allowlist from configured emails.
func NewAllowlist(emails []string) Allowlist {
	list := make(Allowlist, len(emails))
	for _, email := range emails {
		email = normalizeEmail(email)
		if email == "" {
			continue
		}
		list[email] = struct{}{}
	}
	return list
}

// Authorized reports whether the email may hold the dentist role.
func (a Allowlist) Authorized(email string) bool {
	_, ok := a[normalizeEmail(email)]
	return ok
}

// EnforceRole demotes an unauthorized dentist claim to patient and passes
// every other requested role through unchanged.
func (a Allowlist) EnforceRole(email, requested string) string {
	if requested == RoleDentist && !a.Authorized(email) {
		return RolePatient
	}
	return requested
}

// ParseAllowlist splits a comma-separated config value into emails.
func ParseAllowlist(raw string) []string {
	parts := strings.Split(raw, ",")
	emails := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			emails = append(emails, p)
		}
	}
	return emails
}
