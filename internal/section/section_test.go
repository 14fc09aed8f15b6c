package section_test

import (
	"reflect"
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/section"
)

func TestIndexRoundTrip(t *testing.T) {
	want := []section.IndexEntry{
		{Type: section.TypeBlock, Offset: 8, Length: 128},
		{Type: section.TypeBlock, Offset: 136, Length: 64},
		{Type: section.TypeSchema, Offset: 200, Length: 40},
		{Type: section.TypeMetadata, Offset: 240, Length: 512},
	}
	payload := section.EncodeIndex(want)
	got, err := section.DecodeIndex(payload)
	if err != nil {
		t.Fatalf("DecodeIndex: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DecodeIndex = %+v, want %+v", got, want)
	}
}

func TestDecodeIndexTruncated(t *testing.T) {
	if _, err := section.DecodeIndex([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error decoding truncated index payload")
	}
}

func TestDecodeIndexEmpty(t *testing.T) {
	got, err := section.DecodeIndex(section.EncodeIndex(nil))
	if err != nil {
		t.Fatalf("DecodeIndex: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
}
