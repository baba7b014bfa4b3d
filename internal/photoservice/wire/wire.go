// Package wire builds and parses the binary messages of the upload protocol.
//
// The protocol is the reverse-engineered one spoken by the Android photos
// client: protobuf wire format (varint / length-delimited fields) with
// implicit presence, so zero-valued scalar fields are never emitted. Field
// numbers whose meaning is unknown keep their positional names; renaming
// them would only pretend to knowledge nobody has.
package wire

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrNoMediaKey is returned when a commit response carries no media key at
// the expected nesting.
var ErrNoMediaKey = errors.New("no media key in response")

// Quality values accepted by the commit call.
const (
	QualityHigh         int64 = 3
	QualityStorageSaver int64 = 1
)

// commitTimestampF2 is a fixed constant the Android client sends alongside
// the file modification timestamp. Its meaning is unknown.
const commitTimestampF2 int64 = 46000000

// commitTrailer is a fixed two-byte blob terminating every commit request.
var commitTrailer = []byte{1, 3}

// --- append helpers (implicit presence: defaults are not emitted) ---

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendMessage emits a submessage field even when the body is empty:
// message presence is explicit, unlike scalar presence.
func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

// --- parse helpers ---

// fields decodes the top-level fields of b into a map. For repeated field
// numbers the last value wins. Varint values are stored in varints,
// length-delimited ones in blobs; other wire types are skipped.
type fields struct {
	varints map[protowire.Number]uint64
	blobs   map[protowire.Number][]byte
}

func parseFields(b []byte) (*fields, error) {
	f := &fields{
		varints: make(map[protowire.Number]uint64),
		blobs:   make(map[protowire.Number][]byte),
	}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			f.varints[num] = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			f.blobs[num] = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return f, nil
}

// sub descends into nested submessages along path. Returns ok=false when any
// level is absent.
func sub(b []byte, path ...protowire.Number) (*fields, bool, error) {
	f, err := parseFields(b)
	if err != nil {
		return nil, false, err
	}
	for _, num := range path {
		body, ok := f.blobs[num]
		if !ok {
			return nil, false, nil
		}
		f, err = parseFields(body)
		if err != nil {
			return nil, false, err
		}
	}
	return f, true, nil
}

// --- UploadTokenRequest ---

// UploadTokenRequest is the body of the upload-token POST. F1..F4 are fixed
// small integers the Android client always sends.
type UploadTokenRequest struct {
	F1, F2, F3, F4 int64
	FileSizeBytes  int64
}

// NewUploadTokenRequest returns the request for a file of the given size,
// with the fixed fields set to the values the Android client uses.
func NewUploadTokenRequest(fileSizeBytes int64) UploadTokenRequest {
	return UploadTokenRequest{F1: 2, F2: 2, F3: 1, F4: 3, FileSizeBytes: fileSizeBytes}
}

func (m UploadTokenRequest) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.F1)
	b = appendInt64(b, 2, m.F2)
	b = appendInt64(b, 3, m.F3)
	b = appendInt64(b, 4, m.F4)
	b = appendInt64(b, 5, m.FileSizeBytes)
	return b
}

func ParseUploadTokenRequest(b []byte) (UploadTokenRequest, error) {
	f, err := parseFields(b)
	if err != nil {
		return UploadTokenRequest{}, err
	}
	return UploadTokenRequest{
		F1:            int64(f.varints[1]),
		F2:            int64(f.varints[2]),
		F3:            int64(f.varints[3]),
		F4:            int64(f.varints[4]),
		FileSizeBytes: int64(f.varints[5]),
	}, nil
}

// --- HashCheckRequest / HashCheckResponse ---

// HashCheckRequest asks whether media with the given SHA-1 already exists.
type HashCheckRequest struct {
	SHA1 []byte
}

func (m HashCheckRequest) Marshal() []byte {
	inner := appendBytes(nil, 1, m.SHA1)
	body := appendMessage(nil, 1, inner)
	// f1.f2 is always present and always empty.
	body = appendMessage(body, 2, nil)
	return appendMessage(nil, 1, body)
}

func ParseHashCheckRequest(b []byte) (HashCheckRequest, error) {
	f, ok, err := sub(b, 1, 1)
	if err != nil {
		return HashCheckRequest{}, err
	}
	if !ok {
		return HashCheckRequest{}, nil
	}
	return HashCheckRequest{SHA1: f.blobs[1]}, nil
}

// HashCheckResponse carries the remote key of an existing copy, if any.
// An empty MediaKey means "not found".
type HashCheckResponse struct {
	MediaKey string
}

func (m HashCheckResponse) Marshal() []byte {
	bottom := appendString(nil, 1, m.MediaKey)
	mid2 := appendMessage(nil, 2, bottom)
	mid1 := appendMessage(nil, 2, mid2)
	return appendMessage(nil, 1, mid1)
}

// ParseHashCheckResponse extracts the media key nested at f1.f2.f2.f1.
// Absence at any level yields an empty key, not an error.
func ParseHashCheckResponse(b []byte) (HashCheckResponse, error) {
	f, ok, err := sub(b, 1, 2, 2)
	if err != nil {
		return HashCheckResponse{}, err
	}
	if !ok {
		return HashCheckResponse{}, nil
	}
	return HashCheckResponse{MediaKey: string(f.blobs[1])}, nil
}

// --- CommitToken ---

// CommitToken is the opaque continuation returned by the raw upload,
// consumed exactly once by the commit call.
type CommitToken struct {
	SessionID    int64
	Continuation []byte
}

func (m CommitToken) Marshal() []byte {
	var b []byte
	b = appendInt64(b, 1, m.SessionID)
	b = appendBytes(b, 2, m.Continuation)
	return b
}

func ParseCommitToken(b []byte) (CommitToken, error) {
	f, err := parseFields(b)
	if err != nil {
		return CommitToken{}, err
	}
	return CommitToken{
		SessionID:    int64(f.varints[1]),
		Continuation: f.blobs[2],
	}, nil
}

// --- CommitUploadRequest / CommitUploadResponse ---

// CommitUploadRequest finalizes an upload session with file metadata and the
// device identity the quality mode spoofs.
type CommitUploadRequest struct {
	Token             CommitToken
	FileName          string
	SHA1              []byte
	ModifiedAtUnix    int64
	Quality           int64
	Model             string
	Make              string
	AndroidAPIVersion int64
}

func (m CommitUploadRequest) Marshal() []byte {
	session := appendInt64(nil, 1, m.Token.SessionID)
	session = appendBytes(session, 2, m.Token.Continuation)

	ts := appendInt64(nil, 1, m.ModifiedAtUnix)
	ts = appendInt64(ts, 2, commitTimestampF2)

	f1 := appendMessage(nil, 1, session)
	f1 = appendString(f1, 2, m.FileName)
	f1 = appendBytes(f1, 3, m.SHA1)
	f1 = appendMessage(f1, 4, ts)
	f1 = appendInt64(f1, 7, m.Quality)
	f1 = appendInt64(f1, 10, 1)

	f2 := appendString(nil, 3, m.Model)
	f2 = appendString(f2, 4, m.Make)
	f2 = appendInt64(f2, 5, m.AndroidAPIVersion)

	b := appendMessage(nil, 1, f1)
	b = appendMessage(b, 2, f2)
	b = appendBytes(b, 3, commitTrailer)
	return b
}

func ParseCommitUploadRequest(b []byte) (CommitUploadRequest, error) {
	top, err := parseFields(b)
	if err != nil {
		return CommitUploadRequest{}, err
	}

	var m CommitUploadRequest

	if body, ok := top.blobs[1]; ok {
		f1, err := parseFields(body)
		if err != nil {
			return CommitUploadRequest{}, err
		}
		if session, ok := f1.blobs[1]; ok {
			tok, err := ParseCommitToken(session)
			if err != nil {
				return CommitUploadRequest{}, err
			}
			m.Token = tok
		}
		m.FileName = string(f1.blobs[2])
		m.SHA1 = f1.blobs[3]
		if ts, ok := f1.blobs[4]; ok {
			tsf, err := parseFields(ts)
			if err != nil {
				return CommitUploadRequest{}, err
			}
			m.ModifiedAtUnix = int64(tsf.varints[1])
		}
		m.Quality = int64(f1.varints[7])
	}

	if body, ok := top.blobs[2]; ok {
		f2, err := parseFields(body)
		if err != nil {
			return CommitUploadRequest{}, err
		}
		m.Model = string(f2.blobs[3])
		m.Make = string(f2.blobs[4])
		m.AndroidAPIVersion = int64(f2.varints[5])
	}

	return m, nil
}

// CommitUploadResponse carries the remote key of the committed media item.
type CommitUploadResponse struct {
	MediaKey string
}

func (m CommitUploadResponse) Marshal() []byte {
	bottom := appendString(nil, 1, m.MediaKey)
	mid := appendMessage(nil, 3, bottom)
	return appendMessage(nil, 1, mid)
}

// ParseCommitUploadResponse extracts the media key nested at f1.f3.f1.
// Unlike the hash check, a missing or empty key here is a hard failure.
func ParseCommitUploadResponse(b []byte) (CommitUploadResponse, error) {
	f, ok, err := sub(b, 1, 3)
	if err != nil {
		return CommitUploadResponse{}, err
	}
	if !ok || len(f.blobs[1]) == 0 {
		return CommitUploadResponse{}, ErrNoMediaKey
	}
	return CommitUploadResponse{MediaKey: string(f.blobs[1])}, nil
}
