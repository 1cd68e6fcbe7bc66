package library

import (
	"strings"

	"hemlock/internal/records"
)

// Link is one online-resource location on a bib record.
type Link struct {
	Href string
	Text string
}

// Capability is the small per-brand strategy surface. Brands differ in
// how they mark online resources and how verbose their 856 link text is;
// everything else is shared.
type Capability interface {
	IsOnlineResource(bib *records.BibRecord) bool
	OnlineLocations(bib *records.BibRecord, orgShortName string) []Link
	TrimLinkText(text string) string
}

// CapabilityFor selects the strategy by name. The empty name and any
// unknown name fall back to generic behavior.
func CapabilityFor(name string) Capability {
	switch name {
	case "concise":
		return conciseCapability{}
	default:
		return genericCapability{}
	}
}

// KnownCapability reports whether the name is a registered strategy.
func KnownCapability(name string) bool {
	switch name {
	case "", "generic", "concise":
		return true
	}
	return false
}

// genericCapability keeps server-provided link text as-is.
type genericCapability struct{}

func (genericCapability) IsOnlineResource(bib *records.BibRecord) bool {
	return len(bib.OnlineLocations()) > 0
}

func (genericCapability) OnlineLocations(bib *records.BibRecord, orgShortName string) []Link {
	return pairedLocations(bib, orgShortName, nil)
}

func (genericCapability) TrimLinkText(text string) string {
	return strings.TrimSpace(text)
}

// conciseCapability strips the trailing vendor parenthetical some
// consortia append to every 856 link ("Click to access (OverDrive)").
type conciseCapability struct{}

func (conciseCapability) IsOnlineResource(bib *records.BibRecord) bool {
	return len(bib.OnlineLocations()) > 0
}

func (c conciseCapability) OnlineLocations(bib *records.BibRecord, orgShortName string) []Link {
	return pairedLocations(bib, orgShortName, c.TrimLinkText)
}

func (conciseCapability) TrimLinkText(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.LastIndex(text, " ("); i > 0 && strings.HasSuffix(text, ")") {
		return text[:i]
	}
	return text
}

// pairedLocations walks the alternating href/text entries of online_loc.
// Entries scoped to another org (an href carrying a different locg
// shortname) are skipped when an org is given.
func pairedLocations(bib *records.BibRecord, orgShortName string, trim func(string) string) []Link {
	raw := bib.OnlineLocations()
	var links []Link
	for i := 0; i+1 < len(raw); i += 2 {
		href, text := raw[i], raw[i+1]
		if href == "" {
			continue
		}
		if orgShortName != "" && strings.Contains(href, "locg=") &&
			!strings.Contains(href, "locg="+orgShortName) {
			continue
		}
		if text == "" {
			text = href
		}
		if trim != nil {
			text = trim(text)
		}
		links = append(links, Link{Href: href, Text: text})
	}
	return links
}
