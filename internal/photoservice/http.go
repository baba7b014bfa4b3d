package photoservice

import (
	"bytes"
	"compress/gzip"
	"io"
	"time"

	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// NewHTTPClient builds the transport used for all protocol calls. retryMax
// is the transport-level retry budget; it defaults to 0 in config because
// item retry is an explicit user action. timeout 0 means no client timeout,
// since large video uploads can legitimately take a long while.
func NewHTTPClient(retryMax int, timeout time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.Logger = nil
	rc.HTTPClient.Timeout = timeout
	return rc.StandardClient()
}

var gzipMagic = []byte{0x1f, 0x8b}

// maybeGunzip decompresses b when it starts with the gzip magic bytes and
// returns it untouched otherwise.
func maybeGunzip(b []byte) ([]byte, error) {
	if !bytes.HasPrefix(b, gzipMagic) {
		return b, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// progressReader reports the fraction of bytes read from the underlying
// reader. Fractions are clamped to [0,1]; zero-length payloads report 1.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	cb    func(float64)
}

func newProgressReader(r io.Reader, total int64, cb func(float64)) *progressReader {
	return &progressReader{r: r, total: total, cb: cb}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		p.cb(p.fraction())
	}
	return n, err
}

func (p *progressReader) fraction() float64 {
	if p.total <= 0 {
		return 1
	}
	f := float64(p.read) / float64(p.total)
	if f > 1 {
		f = 1
	}
	return f
}
