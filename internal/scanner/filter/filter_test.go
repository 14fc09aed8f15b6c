package filter_test

import (
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/scanner/filter"
)

func TestNoRulesKeepsEverything(t *testing.T) {
	f := filter.New()
	if !f.Match("any/path.txt") {
		t.Error("empty filter should keep every path")
	}
}

func TestAnchoredExclude(t *testing.T) {
	f := filter.New(filter.Rule{Pattern: "/build", Include: false})
	if f.Match("build") {
		t.Error("anchored exclude should drop the root-level build dir")
	}
	if !f.Match("src/build") {
		t.Error("anchored pattern must not match a nested dir of the same name")
	}
}

func TestFloatingExclude(t *testing.T) {
	f := filter.New(filter.Rule{Pattern: "*.o", Include: false})
	if f.Match("main.o") {
		t.Error("floating pattern should match at the root")
	}
	if f.Match("deep/nested/dir/thing.o") {
		t.Error("floating pattern should match at any depth")
	}
	if !f.Match("main.c") {
		t.Error("non-matching path should be kept")
	}
}

func TestLaterRuleOverridesEarlier(t *testing.T) {
	f := filter.New(
		filter.Rule{Pattern: "*.log", Include: false},
		filter.Rule{Pattern: "/keep.log", Include: true},
	)
	if !f.Match("keep.log") {
		t.Error("later include rule should override the earlier exclude")
	}
	if f.Match("other.log") {
		t.Error("unrelated excluded path should stay excluded")
	}
}
