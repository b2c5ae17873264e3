// Package claims holds the claim filtering rules and the stored snapshot
// format shared by the capture and projection flows. The filter decides
// which IdP claims are worth persisting; the snapshot is the only wire
// artifact this service owns.
package claims

// excluded is the fixed set of claim names that never survive filtering.
// One flat set checked by name: registered JWT claims plus per-provider
// noise we have seen in the wild (Azure AD contributes most of it).
// Extending the set is a code change on purpose; it is not configuration.
var excluded = map[string]struct{}{
	// Registered JWT claims (RFC 7519 / OIDC core).
	"iss":       {},
	"aud":       {},
	"exp":       {},
	"iat":       {},
	"nbf":       {},
	"jti":       {},
	"azp":       {},
	"nonce":     {},
	"auth_time": {},
	"at_hash":   {},
	"c_hash":    {},

	// Provider-internal noise.
	"aio":    {}, // Azure AD internal state
	"ver":    {}, // token schema version
	"rh":     {}, // refresh hint
	"uti":    {}, // unique token id
	"ipaddr": {}, // client IP at auth time
	"sid":    {}, // session id
	"s_hash": {}, // state hash
}

// IsExcluded reports whether a claim name is dropped by Filter.
func IsExcluded(name string) bool {
	_, ok := excluded[name]
	return ok
}

// Filter returns a new map with the excluded claims and nil values removed.
// The input is never mutated. Pure: no I/O, no failure mode.
func Filter(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for name, value := range in {
		if value == nil {
			continue
		}
		if _, skip := excluded[name]; skip {
			continue
		}
		out[name] = value
	}
	return out
}
