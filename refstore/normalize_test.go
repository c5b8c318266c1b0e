package refstore

import (
	"strings"
	"testing"
)

func TestNormalizeRef_AssetPath(t *testing.T) {
	cases := map[string]string{
		"/images/img_a1b2c3d4.png":                 "img_a1b2c3d4",
		"http://localhost:8080/images/gen_42.webp": "gen_42",
		"https://cdn.example.com/images/look_7.jpeg?v=2": "look_7",
	}
	for in, want := range cases {
		if got := NormalizeRef(in); got != want {
			t.Errorf("NormalizeRef(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeRef_Filename(t *testing.T) {
	cases := map[string]string{
		"outfit.png":       "outfit",
		"img_a1b2c3d4.jpg": "img_a1b2c3d4",
		"campaign-3.webp":  "campaign-3",
	}
	for in, want := range cases {
		if got := NormalizeRef(in); got != want {
			t.Errorf("NormalizeRef(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeRef_DataURIDeterministic(t *testing.T) {
	uri := "data:image/png;base64," + strings.Repeat("A", 200)

	first := NormalizeRef(uri)
	second := NormalizeRef(uri)

	if first != second {
		t.Errorf("data URI normalization not deterministic: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, "data_") {
		t.Errorf("expected data_ prefix, got %q", first)
	}
}

func TestNormalizeRef_DataURIPrefixCollision(t *testing.T) {
	// Two payloads sharing the first 100 characters collide by design.
	shared := "data:image/png;base64," + strings.Repeat("B", 100)
	a := shared + "tail-one"
	b := shared + "tail-two"

	if NormalizeRef(a) != NormalizeRef(b) {
		t.Error("expected payloads sharing a 100-char prefix to normalize identically")
	}
}

func TestNormalizeRef_Passthrough(t *testing.T) {
	for _, ref := range []string{"img_a1b2c3d4", "gen_7", "42", "  spaced  "} {
		got := NormalizeRef(ref)
		want := strings.TrimSpace(ref)
		if got != want {
			t.Errorf("NormalizeRef(%q) = %q, want %q", ref, got, want)
		}
	}
}

func TestRefVariations_Numeric(t *testing.T) {
	vars := refVariations("7")
	found := false
	for _, v := range vars {
		if v == "image_7" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected image_7 among variations of \"7\", got %v", vars)
	}
}

func TestRefVariations_ImagePrefixStripped(t *testing.T) {
	vars := refVariations("image_7")
	if len(vars) == 0 || vars[0] != "7" {
		t.Errorf("expected image_ prefix stripped to the bare index, got %v", vars)
	}
}

func TestRefVariations_Prefixes(t *testing.T) {
	if vars := refVariations("gen_abc"); vars[0] != "abc" {
		t.Errorf("expected gen_ prefix stripped first, got %v", vars)
	}
	if vars := refVariations("img_abc"); vars[0] != "abc" {
		t.Errorf("expected img_ prefix stripped first, got %v", vars)
	}

	vars := refVariations("abc")
	if len(vars) != 2 || vars[0] != "gen_abc" || vars[1] != "img_abc" {
		t.Errorf("expected bare ref to gain gen_/img_ prefixes, got %v", vars)
	}
}
