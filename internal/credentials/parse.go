package credentials

import (
	"github.com/dmitrijs2005/photoflow/internal/kvtext"
)

// requiredFields must all be present and non-empty (after percent-decoding)
// for an auth blob to be usable.
var requiredFields = []string{"androidId", "Email", "Token", "client_sig", "service"}

// ValidationResult reports whether an auth blob carries every field the
// protocol needs.
type ValidationResult struct {
	IsValid       bool
	Email         string
	MissingFields []string
}

// ParseCredential validates a pasted auth blob. It is a pure function:
// no I/O, no side effects. On success Email holds the percent-decoded
// account email; on failure MissingFields names every absent required field.
func ParseCredential(authBlob string) ValidationResult {
	params := kvtext.AuthBlob.Parse(authBlob)

	var missing []string
	for _, field := range requiredFields {
		if params[field] == "" {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return ValidationResult{IsValid: false, MissingFields: missing}
	}

	return ValidationResult{IsValid: true, Email: params["Email"]}
}
