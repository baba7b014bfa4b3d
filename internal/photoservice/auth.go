package photoservice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/photoflow/internal/common"
	"github.com/dmitrijs2005/photoflow/internal/kvtext"
)

// bearerToken returns a valid bearer token for the client's credential,
// running the device-auth handshake on a cache miss. No single-flight: two
// goroutines missing at once will each handshake, and the last successful
// write wins. The service tolerates this; the cache value is never left
// half-written.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.auth != nil && c.now().Before(c.auth.expiresAt) {
		token := c.auth.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	token, expiresAt, err := c.deviceAuth(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.auth = &cachedAuth{token: token, expiresAt: expiresAt}
	c.mu.Unlock()

	c.log.Debug(ctx, "bearer token refreshed", "expiresAt", expiresAt)

	return token, nil
}

// deviceAuth exchanges the long-lived device token for a short-lived bearer
// token via the form-encoded handshake endpoint. The response is gzip text,
// one key=value per line, and must contain Auth and a numeric Expiry.
func (c *Client) deviceAuth(ctx context.Context) (string, time.Time, error) {
	androidID := c.cred.AndroidID()
	clientSig := c.cred.ClientSig()
	deviceToken := c.cred.Token()

	if androidID == "" || clientSig == "" || deviceToken == "" {
		return "", time.Time{}, common.ErrInvalidCredential
	}

	form := url.Values{
		"androidId":                    {androidID},
		"app":                          {packageName},
		"client_sig":                   {clientSig},
		"callerPkg":                    {packageName},
		"callerSig":                    {c.cred.CallerSig()},
		"device_country":               {c.cred.DeviceCountry()},
		"Email":                        {c.cred.Email},
		"google_play_services_version": {c.cred.PlayServicesVersion()},
		"lang":                         {c.cred.Language()},
		"oauth2_foreground":            {"1"},
		"sdk_version":                  {c.cred.SDKVersion()},
		"service":                      {oauthScope},
		"Token":                        {deviceToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.Auth, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("app", packageName)
	req.Header.Set("Connection", "Keep-Alive")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("device", androidID)
	req.Header.Set("User-Agent", authUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", common.ErrNetworkError, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", common.ErrNetworkError, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", time.Time{}, fmt.Errorf("%w: http status %d", common.ErrAuthenticationFailed, resp.StatusCode)
	}

	data, err := maybeGunzip(raw)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", common.ErrAuthenticationFailed, err)
	}

	values := kvtext.AuthResponse.Parse(string(data))

	token := values["Auth"]
	if token == "" {
		return "", time.Time{}, fmt.Errorf("%w: no auth token in response", common.ErrAuthenticationFailed)
	}

	expiry, err := strconv.ParseInt(values["Expiry"], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: no expiry in response", common.ErrAuthenticationFailed)
	}

	return token, time.Unix(expiry, 0), nil
}
