package evidence

import "github.com/oedrhq/engine/internal/helpers"

// normalizeURL canonicalizes a URL for content-hash dedup: lowercased
// scheme/host, stripped default ports/fragments/tracking params, and a
// deterministically sorted query string. Falls back to the raw lowercased
// string for URLs helpers.CanonicalURL cannot parse, so a malformed URL
// still contributes a stable (if degenerate) hash input rather than
// aborting the Add.
func normalizeURL(raw string) string {
	canonical, err := helpers.CanonicalURL(raw)
	if err != nil {
		return raw
	}
	return canonical
}
