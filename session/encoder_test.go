package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEncodeDecode(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := &Record{
		ID:          strings.Repeat("ab", 32),
		UserID:      "8c1f6e2a-0000-4000-8000-000000000001",
		Fingerprint: "-xlj93w",
		CreatedAt:   created,
		ExpiresAt:   created.Add(30 * time.Minute),
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if out.ID != in.ID || out.UserID != in.UserID || out.Fingerprint != in.Fingerprint ||
		!out.CreatedAt.Equal(in.CreatedAt) || !out.ExpiresAt.Equal(in.ExpiresAt) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestEncodeRejectsOversizedFields(t *testing.T) {
	if _, err := Encode(&Record{ID: strings.Repeat("x", 256)}); err == nil {
		t.Fatal("expected error for oversized id")
	}
}

func TestDecodeCorrupt(t *testing.T) {
	valid, err := Encode(&Record{ID: "id", UserID: "u", Fingerprint: "f"})
	if err != nil {
		t.Fatal(err)
	}

	cases := [][]byte{
		nil,
		{},
		{9},
		valid[:len(valid)-1],
		append(append([]byte(nil), valid...), 0),
		{recordFormatVersion, 200, 'a'},
	}
	for i, data := range cases {
		if _, err := Decode(data); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("case %d: expected ErrCorrupt, got %v", i, err)
		}
	}
}
