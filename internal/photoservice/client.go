// Package photoservice implements the device-authenticated client for the
// remote photo storage service: the auth-token handshake and cache, and the
// four protocol calls (upload token, hash check, raw upload, commit).
package photoservice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/photoflow/internal/common"
	"github.com/dmitrijs2005/photoflow/internal/credentials"
	"github.com/dmitrijs2005/photoflow/internal/logging"
	"github.com/dmitrijs2005/photoflow/internal/photoservice/wire"
)

// Values the Android photos client reports. The service rejects commits from
// clients it does not recognize, so these are part of the protocol.
const (
	packageName       = "com.google.android.apps.photos"
	oauthScope        = "oauth2:https://www.googleapis.com/auth/photos.native"
	clientVersionCode = 49029607
	buildID           = "PQ2A.190205.001"
	cronetVersion     = "127.0.6510.5"
	androidAPIVersion = 28
	deviceMake        = "Google"

	// Device models by upload mode. Storage-saver and quota-counted uploads
	// are keyed off the reported model, not an API flag.
	defaultModel      = "Pixel XL"
	storageSaverModel = "Pixel 2"
	quotaModel        = "Pixel 8"

	authUserAgent = "GoogleAuth/1.4 (Pixel XL PQ2A.190205.001); gzip"

	uploadTokenHeader = "X-GUploader-UploadID"

	// Opaque extension headers the commit endpoint requires byte-for-byte.
	commitExtHeader1      = "x-goog-ext-173412678-bin"
	commitExtHeader1Value = "CgcIAhClARgC"
	commitExtHeader2      = "x-goog-ext-174067345-bin"
	commitExtHeader2Value = "CgIIAg=="
)

// Endpoints are the service URLs. Overridable for tests; production code
// uses DefaultEndpoints.
type Endpoints struct {
	Auth      string
	Upload    string
	HashCheck string
	Commit    string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Auth:      "https://android.googleapis.com/auth",
		Upload:    "https://photos.googleapis.com/data/upload/uploadmedia/interactive",
		HashCheck: "https://photosdata-pa.googleapis.com/6439526531001121323/5084965799730810217",
		Commit:    "https://photosdata-pa.googleapis.com/6439526531001121323/16538846908252377752",
	}
}

type cachedAuth struct {
	token     string
	expiresAt time.Time
}

// Client speaks the upload protocol on behalf of one credential. It owns a
// private bearer-token cache; tokens are never persisted. Safe for use by
// multiple goroutines: concurrent cache misses may each run a handshake,
// the last successful one wins.
type Client struct {
	cred      *credentials.Credential
	http      *http.Client
	endpoints Endpoints
	log       logging.Logger
	now       func() time.Time
	model     string

	mu   sync.Mutex
	auth *cachedAuth
}

func NewClient(httpClient *http.Client, endpoints Endpoints, cred *credentials.Credential, log logging.Logger) *Client {
	return &Client{
		cred:      cred,
		http:      httpClient,
		endpoints: endpoints,
		log:       log,
		now:       time.Now,
		model:     defaultModel,
	}
}

func (c *Client) userAgent() string {
	return fmt.Sprintf("%s/%d (Linux; U; Android 9; %s; %s; Build/%s; Cronet/%s) (gzip)",
		packageName, clientVersionCode, c.cred.Language(), c.model, buildID, cronetVersion)
}

// setCommonHeaders attaches the headers every protocol call carries.
// Setting Accept-Encoding by hand disables the transport's transparent
// decompression; bodies are gunzipped by magic-byte sniffing instead.
func (c *Client) setCommonHeaders(req *http.Request, bearerToken string) {
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept-Language", c.cred.Language())
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Authorization", "Bearer "+bearerToken)
}

// RequestUploadToken asks for an upload session token for a file with the
// given SHA-1 (base64) and size. The token arrives in a response header,
// not the body.
func (c *Client) RequestUploadToken(ctx context.Context, sha1Base64 string, fileSize int64) (string, error) {
	bearer, err := c.bearerToken(ctx)
	if err != nil {
		return "", err
	}

	body := wire.NewUploadTokenRequest(fileSize).Marshal()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.Upload, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	c.setCommonHeaders(req, bearer)
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Goog-Hash", "sha1="+sha1Base64)
	req.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", fileSize))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrNetworkError, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: failed to get upload token (status %d)", common.ErrUploadFailed, resp.StatusCode)
	}

	token := resp.Header.Get(uploadTokenHeader)
	if token == "" {
		return "", fmt.Errorf("%w: no upload token in response", common.ErrUploadFailed)
	}

	return token, nil
}

// FindRemoteMediaByHash checks whether media with the given SHA-1 already
// exists remotely. Returns the remote key, or "" when there is no match.
// A non-2xx status also means "no match", not an error.
func (c *Client) FindRemoteMediaByHash(ctx context.Context, sha1 []byte) (string, error) {
	bearer, err := c.bearerToken(ctx)
	if err != nil {
		return "", err
	}

	body := wire.HashCheckRequest{SHA1: sha1}.Marshal()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.HashCheck, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	c.setCommonHeaders(req, bearer)
	req.Header.Set("Content-Type", "application/x-protobuf")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrNetworkError, err)
	}

	data, err := maybeGunzip(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrUploadFailed, err)
	}

	parsed, err := wire.ParseHashCheckResponse(data)
	if err != nil {
		return "", fmt.Errorf("%w: hash check response: %v", common.ErrUploadFailed, err)
	}

	return parsed.MediaKey, nil
}

// UploadRawBytes PUTs the whole file in one shot against an upload session
// token. onProgress receives values in [0,1]; it is called at least once
// before the transfer and once after. The returned commit token binds this
// session to the subsequent Commit call.
func (c *Client) UploadRawBytes(ctx context.Context, filePath string, uploadToken string, onProgress func(float64)) (wire.CommitToken, error) {
	bearer, err := c.bearerToken(ctx)
	if err != nil {
		return wire.CommitToken{}, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return wire.CommitToken{}, fmt.Errorf("read %s: %w", filePath, err)
	}

	c.log.Debug(ctx, "uploading file", "path", filePath, "size", len(data))

	uploadURL := c.endpoints.Upload + "?upload_id=" + url.QueryEscape(uploadToken)

	onProgress(0)
	body := newProgressReader(bytes.NewReader(data), int64(len(data)), onProgress)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return wire.CommitToken{}, fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	req.ContentLength = int64(len(data))
	c.setCommonHeaders(req, bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return wire.CommitToken{}, fmt.Errorf("%w: %v", common.ErrNetworkError, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return wire.CommitToken{}, fmt.Errorf("%w: %v", common.ErrNetworkError, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return wire.CommitToken{}, fmt.Errorf("%w: upload failed with status %d", common.ErrUploadFailed, resp.StatusCode)
	}

	tok, err := wire.ParseCommitToken(raw)
	if err != nil {
		return wire.CommitToken{}, fmt.Errorf("%w: parse commit token: %v", common.ErrUploadFailed, err)
	}

	onProgress(1)

	c.log.Debug(ctx, "upload done", "path", filePath, "session", tok.SessionID)

	return tok, nil
}

// Commit finalizes an upload session with file metadata, returning the
// remote media key. storageSaver lowers the quality value and spoofs a
// Pixel 2; useQuota spoofs a Pixel 8 (and wins the model choice when both
// flags are set).
func (c *Client) Commit(ctx context.Context, tok wire.CommitToken, fileName string, sha1 []byte, modifiedAt time.Time, storageSaver, useQuota bool) (string, error) {
	bearer, err := c.bearerToken(ctx)
	if err != nil {
		return "", err
	}

	quality := wire.QualityHigh
	model := c.model
	if storageSaver {
		quality = wire.QualityStorageSaver
		model = storageSaverModel
	}
	if useQuota {
		model = quotaModel
	}

	body := wire.CommitUploadRequest{
		Token:             tok,
		FileName:          fileName,
		SHA1:              sha1,
		ModifiedAtUnix:    modifiedAt.Unix(),
		Quality:           quality,
		Model:             model,
		Make:              deviceMake,
		AndroidAPIVersion: androidAPIVersion,
	}.Marshal()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.Commit, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	c.setCommonHeaders(req, bearer)
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set(commitExtHeader1, commitExtHeader1Value)
	req.Header.Set(commitExtHeader2, commitExtHeader2Value)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrNetworkError, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrNetworkError, err)
	}

	data, gzErr := maybeGunzip(raw)
	if gzErr != nil {
		data = raw
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error(ctx, "commit failed", "status", resp.StatusCode, "body", string(data))
		return "", fmt.Errorf("%w: commit failed with status %d", common.ErrUploadFailed, resp.StatusCode)
	}

	parsed, err := wire.ParseCommitUploadResponse(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrUploadFailed, err)
	}

	return parsed.MediaKey, nil
}
