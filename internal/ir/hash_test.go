package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterminism(t *testing.T) {
	doc := IRObject{
		"name":   IRString("Article"),
		"fields": IRArray{IRObject{"api_key": IRString("title")}},
	}

	fp1, err := Fingerprint(doc)
	require.NoError(t, err)
	fp2, err := Fingerprint(doc.Clone())
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, FingerprintLen)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	base := IRObject{"name": IRString("Article")}

	assert.NotEqual(t, MustFingerprint(base), MustFingerprint(IRObject{"name": IRString("Page")}))
	assert.NotEqual(t, MustFingerprint(base), MustFingerprint(base.Merge(O("sortable", IRBool(true)))))
}

func TestFingerprintIsDomainSeparated(t *testing.T) {
	doc := IRObject{"a": IRInt(1)}
	canonical, err := MarshalCanonical(doc)
	require.NoError(t, err)

	assert.Equal(t, hashWithDomain(DomainItem, canonical), MustFingerprint(doc))
	assert.NotEqual(t, hashWithDomain("other/v1", canonical), MustFingerprint(doc))
}

func TestFingerprintReferenceStableBeforeResolution(t *testing.T) {
	withRef := IRObject{"validators": IRObject{"slug_title_field": IRObject{"title_field_id": FieldRef("title")}}}
	sameRef := IRObject{"validators": IRObject{"slug_title_field": IRObject{"title_field_id": FieldRef("title")}}}
	otherRef := IRObject{"validators": IRObject{"slug_title_field": IRObject{"title_field_id": FieldRef("name")}}}

	assert.Equal(t, MustFingerprint(withRef), MustFingerprint(sameRef))
	assert.NotEqual(t, MustFingerprint(withRef), MustFingerprint(otherRef))
}

func TestFingerprintNullDiffersFromAbsent(t *testing.T) {
	withNull := IRObject{"appearance": IRObject{"field_extension": IRNull{}}}
	absent := IRObject{"appearance": IRObject{}}
	assert.NotEqual(t, MustFingerprint(withNull), MustFingerprint(absent))
}

func TestFingerprintLiteralCannotMimicReference(t *testing.T) {
	_, err := Fingerprint(IRObject{"x": IRObject{ReferenceKey: IRString("field:title")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fingerprint")
}

func TestMustFingerprintPanics(t *testing.T) {
	assert.Panics(t, func() { MustFingerprint(IRObject{"x": IRObject{ReferenceKey: IRString("field:x")}}) })
}

func TestFieldRefResolve(t *testing.T) {
	snap := NewSnapshot([2]string{"title", "f-1"})

	id, err := FieldRef("title").Resolve(snap)
	require.NoError(t, err)
	assert.Equal(t, "f-1", id)

	_, err = FieldRef("slug").Resolve(snap)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTargetMissing))
}

func TestReferenceWithoutLookup(t *testing.T) {
	_, err := Reference{Description: "x"}.Resolve(Snapshot{})
	require.Error(t, err)
}

func TestSnapshotWithIsPersistent(t *testing.T) {
	empty := NewSnapshot()
	one := empty.With("title", "f-2")
	two := one.With("slug", "f-1")

	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 1, one.Len())
	assert.False(t, one.Has("slug"))
	assert.Equal(t, []string{"title", "slug"}, two.APIKeys())
	assert.Equal(t, []string{"f-1", "f-2"}, two.IDs())
	assert.Equal(t, "f-1,f-2", two.Key())
}

func TestSnapshotWithOverwritesExistingKey(t *testing.T) {
	snap := NewSnapshot([2]string{"title", "a"}).With("title", "b")
	id, ok := snap.Lookup("title")
	assert.True(t, ok)
	assert.Equal(t, "b", id)
	assert.Equal(t, 1, snap.Len())
}
