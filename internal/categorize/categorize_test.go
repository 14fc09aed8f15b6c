package categorize_test

import (
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/categorize"
)

func TestIncompressibleKnownMagic(t *testing.T) {
	gzip := []byte{0x1f, 0x8b, 0x08, 0x00}
	if got := categorize.Incompressible(gzip, "a.gz"); got != categorize.CategoryIncompressible {
		t.Fatalf("gzip magic: got %v, want incompressible", got)
	}
}

func TestIncompressiblePlainText(t *testing.T) {
	text := []byte("hello, world\n")
	if got := categorize.Incompressible(text, "a.txt"); got != categorize.CategoryDefault {
		t.Fatalf("plain text: got %v, want default", got)
	}
}

func TestIncompressibleShortInput(t *testing.T) {
	if got := categorize.Incompressible([]byte{0x1f}, "a"); got != categorize.CategoryDefault {
		t.Fatalf("truncated magic: got %v, want default", got)
	}
}
