package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const recordFormatVersion = 1

// ErrCorrupt is returned when a stored record cannot be decoded.
var ErrCorrupt = errors.New("session record corrupt")

// Encode serializes r as: version byte, three length-prefixed strings (ID,
// UserID, Fingerprint) and two big-endian Unix millisecond timestamps.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersion)

	for _, field := range []struct {
		name  string
		value string
	}{
		{"id", r.ID},
		{"userID", r.UserID},
		{"fingerprint", r.Fingerprint},
	} {
		if len(field.value) > 255 {
			return nil, errors.New(field.name + " too long")
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses data produced by Encode. Any structural problem yields
// ErrCorrupt.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != recordFormatVersion {
		return nil, ErrCorrupt
	}

	var fields [3]string
	for i := range fields {
		n, err := reader.ReadByte()
		if err != nil {
			return nil, ErrCorrupt
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return nil, ErrCorrupt
		}
		fields[i] = string(b)
	}

	var created, expires int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return nil, ErrCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, ErrCorrupt
	}
	if reader.Len() != 0 {
		return nil, ErrCorrupt
	}

	return &Record{
		ID:          fields[0],
		UserID:      fields[1],
		Fingerprint: fields[2],
		CreatedAt:   time.UnixMilli(created).UTC(),
		ExpiresAt:   time.UnixMilli(expires).UTC(),
	}, nil
}
