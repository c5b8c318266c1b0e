package refstore

import (
	"strings"
	"testing"
)

func TestRegister_MintsID(t *testing.T) {
	s := New()

	id := s.Register(RegisterOpts{Data: []byte{1}, Kind: KindUploaded})

	if !strings.HasPrefix(id, "img_") {
		t.Errorf("expected minted id with img_ prefix, got %q", id)
	}
	entry, ok := s.Get(id)
	if !ok {
		t.Fatalf("minted id %q not found in store", id)
	}
	if entry.Aliases[0] != id {
		t.Errorf("canonical id must be its own first alias, got %v", entry.Aliases)
	}
}

func TestRegister_IdempotentAliasMerge(t *testing.T) {
	s := New()

	first := s.Register(RegisterOpts{ID: "img_x", Kind: KindUploaded, Aliases: []string{"a", "b"}})
	second := s.Register(RegisterOpts{ID: "img_x", Kind: KindUploaded, Aliases: []string{"b", "c"}})

	if first != second {
		t.Fatalf("re-registration returned different id: %q vs %q", first, second)
	}
	entry, _ := s.Get("img_x")
	want := []string{"img_x", "a", "b", "c"}
	if len(entry.Aliases) != len(want) {
		t.Fatalf("expected aliases %v, got %v", want, entry.Aliases)
	}
	for i, alias := range want {
		if entry.Aliases[i] != alias {
			t.Errorf("alias order changed: expected %v, got %v", want, entry.Aliases)
			break
		}
	}
	if s.Len() != 1 {
		t.Errorf("expected one entry after re-registration, got %d", s.Len())
	}
}

func TestResolve_AliasAndCanonicalAgree(t *testing.T) {
	s := New()
	s.Register(RegisterOpts{ID: "img_x", Kind: KindGenerated, Aliases: []string{"hero-shot.png"}})

	byAlias, ok1 := s.Resolve("hero-shot.png")
	byID, ok2 := s.Resolve("img_x")

	if !ok1 || !ok2 {
		t.Fatal("expected both alias and canonical id to resolve")
	}
	if byAlias != byID {
		t.Error("alias and canonical id resolved to different entries")
	}
}

func TestResolve_NumericAndImagePrefix(t *testing.T) {
	s := New()
	s.Register(RegisterOpts{ID: "img_x", Kind: KindUploaded, Aliases: []string{"image_7"}})

	img, ok := s.Resolve("7")
	if !ok {
		t.Fatal("numeric ref \"7\" did not resolve via image_7 alias")
	}
	if img.CanonicalID != "img_x" {
		t.Errorf("resolved wrong entry: %q", img.CanonicalID)
	}
}

func TestResolve_NumericAliasBothSpellings(t *testing.T) {
	s := New()
	s.Register(RegisterOpts{ID: "img_x", Kind: KindUploaded, Aliases: []string{"7"}})

	bare, ok1 := s.Resolve("7")
	prefixed, ok2 := s.Resolve("image_7")

	if !ok1 || !ok2 {
		t.Fatalf("both \"7\" and \"image_7\" must resolve when either is an alias (ok1=%v ok2=%v)", ok1, ok2)
	}
	if bare != prefixed {
		t.Error("numeric and image_-prefixed spellings resolved to different entries")
	}
}

func TestResolve_GenPrefixVariations(t *testing.T) {
	s := New()
	s.Register(RegisterOpts{ID: "gen_abc", Kind: KindGenerated})

	if _, ok := s.Resolve("abc"); !ok {
		t.Error("bare ref did not resolve to gen_-prefixed id")
	}
	if _, ok := s.Resolve("gen_abc"); !ok {
		t.Error("exact id did not resolve")
	}
}

func TestResolve_ImgPrefixStripped(t *testing.T) {
	s := New()
	s.Register(RegisterOpts{ID: "abc", Kind: KindUploaded})

	if _, ok := s.Resolve("img_abc"); !ok {
		t.Error("img_-prefixed ref did not resolve to unprefixed id")
	}
}

func TestResolve_AssetURL(t *testing.T) {
	s := New()
	s.Register(RegisterOpts{ID: "img_a1b2", Kind: KindGenerated, URL: "http://localhost:8080/images/img_a1b2.png"})

	if _, ok := s.Resolve("http://localhost:8080/images/img_a1b2.png"); !ok {
		t.Error("asset URL did not resolve to embedded id")
	}
}

func TestResolve_DataURISharedEntry(t *testing.T) {
	s := New()
	uri := "data:image/png;base64," + strings.Repeat("C", 150)
	id := s.Register(RegisterOpts{ID: NormalizeRef(uri), Data: []byte{1}, Kind: KindUploaded})

	img, ok := s.Resolve(uri)
	if !ok {
		t.Fatal("data URI did not resolve to its hashed entry")
	}
	if img.CanonicalID != id {
		t.Errorf("resolved %q, want %q", img.CanonicalID, id)
	}
}

func TestResolve_UnknownIsMissNotError(t *testing.T) {
	s := New()

	if _, ok := s.Resolve("never-registered"); ok {
		t.Error("expected miss for unknown reference")
	}
	if _, ok := s.Resolve(""); ok {
		t.Error("expected miss for empty reference")
	}
}

func TestRegister_PayloadMergedLater(t *testing.T) {
	s := New()
	s.Register(RegisterOpts{ID: "img_x", Kind: KindReference})
	s.Register(RegisterOpts{ID: "img_x", Kind: KindReference, Data: []byte{9}, URL: "http://h/images/img_x.png"})

	entry, _ := s.Get("img_x")
	if entry.Data == nil || entry.URL == "" {
		t.Error("payload registered after first sighting was not merged")
	}
}

func TestAll_RegistrationOrder(t *testing.T) {
	s := New()
	s.Register(RegisterOpts{ID: "a", Kind: KindUploaded})
	s.Register(RegisterOpts{ID: "b", Kind: KindUploaded})
	s.Register(RegisterOpts{ID: "a", Kind: KindUploaded}) // re-registration must not reorder

	all := s.All()
	if len(all) != 2 || all[0].CanonicalID != "a" || all[1].CanonicalID != "b" {
		t.Errorf("expected registration order [a b], got %v", all)
	}
}
