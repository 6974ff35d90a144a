package captions

import (
	"strings"
	"testing"

	"github.com/slickofficials/autoposter/internal/domain"
)

func TestBuildKeepsPlaceholder(t *testing.T) {
	got := Build("Shop A", domain.NetworkAwin)
	if !strings.Contains(got, "Shop A") {
		t.Fatalf("caption missing offer name: %q", got)
	}
	if !strings.Contains(got, LinkPlaceholder) {
		t.Fatalf("caption missing link placeholder: %q", got)
	}
}

func TestBuildEmptyName(t *testing.T) {
	got := Build("  ", domain.NetworkRakuten)
	if !strings.Contains(got, "New offer") {
		t.Fatalf("expected fallback name, got %q", got)
	}
}

func TestSubstituteReplacesPlaceholder(t *testing.T) {
	got := Substitute("Deal! "+LinkPlaceholder, "https://t.example/l1")
	if got != "Deal! https://t.example/l1" {
		t.Fatalf("unexpected caption: %q", got)
	}
}

func TestSubstituteAppendsWhenNoPlaceholder(t *testing.T) {
	got := Substitute("Deal!", "https://t.example/l1")
	if !strings.HasSuffix(got, "\nhttps://t.example/l1") {
		t.Fatalf("expected link appended, got %q", got)
	}
}

func TestSubstituteLeavesExistingLink(t *testing.T) {
	in := "Deal! https://t.example/l1"
	if got := Substitute(in, "https://t.example/l1"); got != in {
		t.Fatalf("expected caption unchanged, got %q", got)
	}
}
