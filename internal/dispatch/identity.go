package dispatch

import (
	"fmt"
	"strings"
)

// IdentityRecord is the structured answer of a number identity lookup.
type IdentityRecord struct {
	Serialized string `json:"_serialized,omitempty"`
	User       string `json:"user,omitempty"`
	Server     string `json:"server,omitempty"`
	ID         string `json:"id,omitempty"`
}

// IdentityFromLookup extracts a bare identifier from a number identity lookup
// result. Precedence: serialized id (suffix stripped), user, id, then string
// coercion. An empty string means nothing usable was found.
func IdentityFromLookup(v any) string {
	var raw string
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		raw = stripDomain(r)
	case IdentityRecord:
		raw = r.identifier()
	case *IdentityRecord:
		if r == nil {
			return ""
		}
		raw = r.identifier()
	case map[string]any:
		raw = identifierFromMap(r)
	case fmt.Stringer:
		raw = stripDomain(r.String())
	default:
		raw = stripDomain(fmt.Sprint(v))
	}

	raw = strings.TrimSpace(raw)
	switch raw {
	case "null", "undefined", "<nil>":
		return ""
	}
	return raw
}

func (r IdentityRecord) identifier() string {
	switch {
	case r.Serialized != "":
		return stripDomain(r.Serialized)
	case r.User != "":
		return r.User
	default:
		return r.ID
	}
}

func identifierFromMap(m map[string]any) string {
	if s, ok := m["_serialized"].(string); ok && s != "" {
		return stripDomain(s)
	}
	if u, ok := m["user"].(string); ok && u != "" {
		return u
	}
	switch id := m["id"].(type) {
	case nil:
	case string:
		if id != "" {
			return id
		}
	case map[string]any:
		return identifierFromMap(id)
	default:
		return fmt.Sprint(id)
	}
	return ""
}

func stripDomain(s string) string {
	s = strings.TrimSpace(s)
	if at := strings.IndexByte(s, '@'); at >= 0 {
		return s[:at]
	}
	return s
}

// CleanNumber removes chat suffixes, a leading plus and surrounding spaces.
func CleanNumber(id string) string {
	id = strings.TrimSpace(id)
	id = strings.ReplaceAll(id, ContactSuffix, "")
	id = strings.ReplaceAll(id, GroupSuffix, "")
	return strings.TrimPrefix(id, "+")
}
