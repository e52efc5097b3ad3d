package vcf

import "strings"

// NormalizeID returns the canonical form of an rsID-style identifier:
// trimmed, lower-case, with the "rs" prefix enforced. The missing sentinel
// and empty strings are returned unchanged. NormalizeID is idempotent.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || id == MissingID {
		return id
	}
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, "rs") {
		id = "rs" + id
	}
	return id
}
