package schema

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultBlockSuffix is appended to block api keys unless Naming overrides it.
const DefaultBlockSuffix = "block"

// Naming is the global naming policy. It changes remote api keys, so it is
// part of every item fingerprint.
type Naming struct {
	// APIKeySuffix is appended to every derived item api key, e.g. an
	// environment tag.
	APIKeySuffix string `yaml:"api_key_suffix" json:"api_key_suffix"`

	// BlockSuffix is appended to derived block api keys before
	// APIKeySuffix. Empty means DefaultBlockSuffix; "-" disables it.
	BlockSuffix string `yaml:"block_suffix" json:"block_suffix"`
}

func (n Naming) blockSuffix() string {
	switch n.BlockSuffix {
	case "":
		return DefaultBlockSuffix
	case "-":
		return ""
	}
	return n.BlockSuffix
}

// ItemAPIKey derives the api key for an item of kind named name.
func (n Naming) ItemAPIKey(kind Kind, name string) (string, error) {
	var suffixes []string
	if kind == KindBlock {
		suffixes = append(suffixes, n.blockSuffix())
	}
	suffixes = append(suffixes, n.APIKeySuffix)
	return DeriveAPIKey(name, suffixes...)
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// DeriveAPIKey turns a human name into a snake_case api key:
// diacritics are stripped, runs of anything but [a-z0-9] collapse to "_",
// and each non-empty suffix is appended with "_".
//
//	DeriveAPIKey("Blog Post", "block") == "blog_post_block"
func DeriveAPIKey(name string, suffixes ...string) (string, error) {
	base, err := snake(name)
	if err != nil {
		return "", err
	}
	if base == "" {
		return "", &ValidationError{Item: name, Message: "name produces an empty api key"}
	}
	if base[0] >= '0' && base[0] <= '9' {
		return "", &ValidationError{Item: name, Message: "api key must start with a letter"}
	}

	parts := []string{base}
	for _, s := range suffixes {
		sfx, err := snake(s)
		if err != nil {
			return "", err
		}
		if sfx != "" {
			parts = append(parts, sfx)
		}
	}
	return strings.Join(parts, "_"), nil
}

func snake(s string) (string, error) {
	plain, _, err := transform.String(stripMarks, s)
	if err != nil {
		return "", &ValidationError{Item: s, Message: "cannot normalize name: " + err.Error()}
	}

	var b strings.Builder
	pendingSep := false
	prevLower := false
	for _, r := range plain {
		if unicode.IsUpper(r) && prevLower {
			pendingSep = true
		}
		lr := unicode.ToLower(r)
		if (lr >= 'a' && lr <= 'z') || (lr >= '0' && lr <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			prevLower = lr == r
			b.WriteRune(lr)
			continue
		}
		pendingSep = true
		prevLower = false
	}
	return b.String(), nil
}

// ValidAPIKey reports whether key is already in derived form.
func ValidAPIKey(key string) bool {
	derived, err := DeriveAPIKey(key)
	return err == nil && derived == key
}
