package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// CurrentSchemaVersion is the leading byte written by [Encode]. Version 1
// payloads, which used uint8 length prefixes, are still decoded.
const CurrentSchemaVersion = 2

const (
	schemaV1 = 1

	maxFieldLen = math.MaxUint16
)

// Encode serializes a session into the compact binary form stored in Redis.
// The session id is not part of the payload; it is the key.
//
// Layout (v2): version byte, then user id, email, username, provider and
// device fingerprint as big-endian uint16-length-prefixed strings, then
// token version, created-at and last-activity as big-endian int64 (times in
// Unix milliseconds).
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(CurrentSchemaVersion)

	for _, f := range []struct {
		name  string
		value string
	}{
		{"userID", s.UserID},
		{"email", s.Email},
		{"username", s.Username},
		{"provider", s.Provider},
		{"deviceFingerprint", s.DeviceFingerprint},
	} {
		if len(f.value) > maxFieldLen {
			return nil, fmt.Errorf("%s too long", f.name)
		}
		var n [2]byte
		binary.BigEndian.PutUint16(n[:], uint16(len(f.value)))
		buf.Write(n[:])
		buf.WriteString(f.value)
	}

	for _, v := range []int64{s.TokenVersion, unixMilli(s.CreatedAt), unixMilli(s.LastActivity)} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a payload produced by [Encode]. The returned session has an
// empty SessionID; the caller fills it from the storage key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != CurrentSchemaVersion && version != schemaV1 {
		return nil, fmt.Errorf("unsupported session schema version %d", version)
	}

	s := &Session{}
	for _, dst := range []*string{&s.UserID, &s.Email, &s.Username, &s.Provider, &s.DeviceFingerprint} {
		if *dst, err = readString(reader, version); err != nil {
			return nil, err
		}
	}

	var created, last int64
	for _, dst := range []*int64{&s.TokenVersion, &created, &last} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}
	s.CreatedAt = time.UnixMilli(created)
	s.LastActivity = time.UnixMilli(last)

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session payload")
	}
	if s.UserID == "" {
		return nil, errors.New("session payload missing user id")
	}

	return s, nil
}

func readString(r *bytes.Reader, version byte) (string, error) {
	var n int
	if version == schemaV1 {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		n = int(b)
	} else {
		var prefix uint16
		if err := binary.Read(r, binary.BigEndian, &prefix); err != nil {
			return "", err
		}
		n = int(prefix)
	}
	if n > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
