package domain

import "strings"

// Domains that identify people rather than companies. An address on one of
// these never yields an organization.
var personalDomains = map[string]bool{
	"gmail.com":      true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"yahoo.com":      true,
	"icloud.com":     true,
	"live.com":       true,
	"live.dk":        true,
	"protonmail.com": true,
}

// Company names that the naive capitalize-the-domain fallback would mangle.
var knownOrganizations = map[string]string{
	"novonordisk": "Novo Nordisk",
	"grundfos":    "Grundfos",
	"maersk":      "Maersk",
	"vestas":      "Vestas",
	"danskebank":  "Danske Bank",
	"carlsberg":   "Carlsberg",
}

// OrganizationFromEmail derives a display-worthy company name from an email
// address. Returns "" for personal mailboxes and unparseable addresses.
func OrganizationFromEmail(email string) string {
	_, domain, found := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	if !found || domain == "" {
		return ""
	}
	if personalDomains[domain] {
		return ""
	}

	base, _, _ := strings.Cut(domain, ".")
	if base == "" {
		return ""
	}
	if name, ok := knownOrganizations[base]; ok {
		return name
	}
	return strings.ToUpper(base[:1]) + base[1:]
}
