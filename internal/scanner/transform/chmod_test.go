package transform_test

import (
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/scanner/transform"
)

func TestOctalReplace(t *testing.T) {
	c, err := transform.Parse("0755", 0)
	if err != nil {
		t.Fatal(err)
	}
	got := c.Apply(0, false)
	if got != 0755 {
		t.Errorf("got %04o, want 0755", got)
	}
}

func TestSymbolicAddUserExec(t *testing.T) {
	c, err := transform.Parse("u+x", 0)
	if err != nil {
		t.Fatal(err)
	}
	got := c.Apply(0644, false)
	if got != 0744 {
		t.Errorf("got %04o, want 0744", got)
	}
}

func TestPromoteExecOnDirectories(t *testing.T) {
	c, err := transform.Parse("a+X", 0)
	if err != nil {
		t.Fatal(err)
	}
	got := c.Apply(0644, true)
	if got != 0755 {
		t.Errorf("got %04o, want 0755", got)
	}
}

func TestInvalidSpecRejected(t *testing.T) {
	if _, err := transform.Parse("", 0); err == nil {
		t.Error("empty spec should be rejected")
	}
	if _, err := transform.Parse("u+z", 0); err == nil {
		t.Error("unknown permission letter should be rejected")
	}
}
