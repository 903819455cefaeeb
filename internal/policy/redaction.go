package policy

import "regexp"

var (
	keyParamPattern = regexp.MustCompile(`([?&](?:key|api_key|token)=)[^&\s"]+`)
	bearerPattern   = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`)
	jwtPattern      = regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`)
)

// RedactSecrets masks credentials that tend to leak into logs through request
// URLs and error strings.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := input

	next := keyParamPattern.ReplaceAllString(out, "${1}[REDACTED]")
	changed = changed || next != out
	out = next

	next = bearerPattern.ReplaceAllString(out, "${1}[REDACTED]")
	changed = changed || next != out
	out = next

	next = jwtPattern.ReplaceAllString(out, "[REDACTED_TOKEN]")
	changed = changed || next != out
	out = next

	return out, changed
}
