// Package credentials holds device credentials for the photo service:
// the model with its lazily derived protocol fields, validation of pasted
// auth blobs, and a sqlite-backed store keyed by account email.
package credentials

import (
	"time"

	"github.com/dmitrijs2005/photoflow/internal/kvtext"
)

// Defaults used when the auth blob omits an optional field. These mirror the
// values the Android client reports on a stock device.
const (
	DefaultLanguage            = "en"
	DefaultDeviceCountry       = "us"
	DefaultSDKVersion          = "28"
	DefaultPlayServicesVersion = "242913058"
)

// Credential is a stored device credential. Email uniquely identifies it;
// AuthBlob is the opaque key=value&... string pasted by the user. All
// protocol fields are derived from AuthBlob on demand.
type Credential struct {
	Email    string
	AuthBlob string
	AddedAt  time.Time
}

func (c *Credential) lookup(key string) string {
	v, _ := kvtext.AuthBlob.Lookup(c.AuthBlob, key)
	return v
}

func (c *Credential) lookupOr(key, fallback string) string {
	if v, ok := kvtext.AuthBlob.Lookup(c.AuthBlob, key); ok && v != "" {
		return v
	}
	return fallback
}

// AndroidID is the device identifier used in the auth handshake.
func (c *Credential) AndroidID() string { return c.lookup("androidId") }

// Token is the long-lived device token exchanged for bearer tokens.
func (c *Credential) Token() string { return c.lookup("Token") }

// ClientSig is the package signature of the photos client.
func (c *Credential) ClientSig() string { return c.lookup("client_sig") }

// CallerSig is the signature of the calling package; falls back to ClientSig.
func (c *Credential) CallerSig() string {
	return c.lookupOr("callerSig", c.ClientSig())
}

func (c *Credential) Language() string {
	return c.lookupOr("lang", DefaultLanguage)
}

func (c *Credential) DeviceCountry() string {
	return c.lookupOr("device_country", DefaultDeviceCountry)
}

func (c *Credential) SDKVersion() string {
	return c.lookupOr("sdk_version", DefaultSDKVersion)
}

func (c *Credential) PlayServicesVersion() string {
	return c.lookupOr("google_play_services_version", DefaultPlayServicesVersion)
}
