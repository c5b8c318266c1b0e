package refstore

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// The normalization rules below run in order; the first one that
// recognizes the ref rewrites it. Keeping them as an explicit list makes
// the behavior testable without touching call sites.

// assetPathRe matches an asset-serving path and captures the embedded id,
// e.g. "/images/img_a1b2c3d4.png" or "https://host/images/gen_42.webp".
var assetPathRe = regexp.MustCompile(`(?:^|/)images/([A-Za-z0-9_\-]+)\.(?:png|jpe?g|webp)(?:\?.*)?$`)

// filenameRe matches a trailing image filename and captures the stem.
var filenameRe = regexp.MustCompile(`([A-Za-z0-9_\-]+)\.(?:png|jpe?g|webp)$`)

// NormalizeRef canonicalizes the loose string shapes historically used to
// name images. It is a pure function:
//
//  1. an asset-serving path yields the embedded id
//  2. a trailing <name>.<png|jpg|jpeg|webp> filename yields the stem
//  3. a data: payload maps to a short deterministic hash of its first
//     100 characters, so repeated inline payloads share one entry
//  4. anything else passes through unchanged
func NormalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)

	if m := assetPathRe.FindStringSubmatch(ref); m != nil {
		return m[1]
	}
	if m := filenameRe.FindStringSubmatch(ref); m != nil {
		return m[1]
	}
	if strings.HasPrefix(ref, "data:") {
		return hashDataURI(ref)
	}
	return ref
}

// hashDataURI maps a data: payload to a stable short id. Only the first
// 100 characters participate, so two distinct payloads sharing that
// prefix collide. Collision-tolerant by design, not cryptographic.
func hashDataURI(ref string) string {
	prefix := ref
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	h := fnv.New32a()
	h.Write([]byte(prefix))
	return fmt.Sprintf("data_%08x", h.Sum32())
}

// refVariations returns the ordered list of alternate spellings tried
// when a ref misses the store: numeric indexes and the image_ prefix
// convert into each other, and gen_/img_ prefixes are added or stripped.
// The conversions are symmetric so "7" and "image_7" resolve to the same
// entry no matter which spelling was registered as the alias.
func refVariations(ref string) []string {
	var out []string

	if isNumeric(ref) {
		out = append(out, "image_"+ref)
	}

	switch {
	case strings.HasPrefix(ref, "image_"):
		out = append(out, strings.TrimPrefix(ref, "image_"))
	case strings.HasPrefix(ref, "gen_"):
		out = append(out, strings.TrimPrefix(ref, "gen_"))
	case strings.HasPrefix(ref, "img_"):
		out = append(out, strings.TrimPrefix(ref, "img_"))
	default:
		out = append(out, "gen_"+ref, "img_"+ref)
	}

	return out
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
