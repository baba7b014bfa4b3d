// Package kvtext parses delimited key=value text. Two dialects of it appear
// in the device protocol: the pasted auth blob (&-separated, percent-encoded
// values) and the auth handshake response body (newline-separated, raw values).
package kvtext

import (
	"net/url"
	"strings"
)

// Dialect describes how a key=value text is delimited.
type Dialect struct {
	// PairSep separates key=value pairs from each other.
	PairSep string
	// KeySep separates a key from its value. Only the first occurrence
	// splits; the value may contain further separators.
	KeySep string
	// DecodeValues percent-decodes values after splitting.
	DecodeValues bool
}

var (
	// AuthBlob is the dialect of the pasted device credential string:
	// key=value pairs joined with '&', values percent-encoded.
	AuthBlob = Dialect{PairSep: "&", KeySep: "=", DecodeValues: true}

	// AuthResponse is the dialect of the device-auth handshake response:
	// one key=value pair per line, values taken as-is.
	AuthResponse = Dialect{PairSep: "\n", KeySep: "=", DecodeValues: false}
)

// Parse splits s into a key→value map. Pairs without a key separator are
// skipped. Later duplicates overwrite earlier ones.
func (d Dialect) Parse(s string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(s, d.PairSep) {
		key, value, ok := strings.Cut(pair, d.KeySep)
		if !ok {
			continue
		}
		result[key] = d.decode(value)
	}
	return result
}

// Lookup returns the value for key in s, reporting whether the key was found.
func (d Dialect) Lookup(s, key string) (string, bool) {
	for _, pair := range strings.Split(s, d.PairSep) {
		k, value, ok := strings.Cut(pair, d.KeySep)
		if ok && k == key {
			return d.decode(value), true
		}
	}
	return "", false
}

func (d Dialect) decode(value string) string {
	if !d.DecodeValues {
		return value
	}
	decoded, err := url.PathUnescape(value)
	if err != nil {
		// An undecodable value is returned raw rather than dropped.
		return value
	}
	return decoded
}
