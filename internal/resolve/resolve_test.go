package resolve

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemasync/internal/ir"
)

func countingRef(target string, calls *int) ir.Reference {
	ref := ir.FieldRef(target)
	lookup := ref.Lookup
	ref.Lookup = func(s ir.Snapshot) (string, error) {
		*calls++
		return lookup(s)
	}
	return ref
}

func TestResolveReplacesReferencesRecursively(t *testing.T) {
	snap := ir.NewSnapshot([2]string{"title", "f-1"}, [2]string{"body", "f-2"})
	payload := ir.IRObject{
		"slug_title_field": ir.IRObject{"title_field_id": ir.FieldRef("title")},
		"list":             ir.IRArray{ir.IRString("x"), ir.FieldRef("body"), ir.IRInt(3)},
		"plain":            ir.IRBool(true),
	}

	out, err := New().ResolveObject("slug.validators", payload, snap)
	require.NoError(t, err)

	assert.Equal(t, ir.IRObject{
		"slug_title_field": ir.IRObject{"title_field_id": ir.IRString("f-1")},
		"list":             ir.IRArray{ir.IRString("x"), ir.IRString("f-2"), ir.IRInt(3)},
		"plain":            ir.IRBool(true),
	}, out)
	assert.True(t, ir.ContainsReference(payload), "input must not be mutated")
}

func TestResolveMissingTargetFails(t *testing.T) {
	_, err := New().Resolve("slug.validators", ir.IRObject{"id": ir.FieldRef("title")}, ir.NewSnapshot())
	require.Error(t, err)

	var ue *UnresolvedReferenceError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "slug.validators.id", ue.Path)
	assert.Equal(t, "field:title", ue.Description)
	assert.True(t, errors.Is(err, ir.ErrTargetMissing))
}

func TestResolveMemoizesPerPathAndSnapshot(t *testing.T) {
	calls := 0
	ref := countingRef("title", &calls)
	snap := ir.NewSnapshot([2]string{"title", "f-1"})
	r := New()

	_, err := r.Resolve("a", ref, snap)
	require.NoError(t, err)
	_, err = r.Resolve("a", ref, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = r.Resolve("b", ref, snap)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "different path is a different memo entry")

	_, err = r.Resolve("a", ref, snap.With("slug", "f-9"))
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "grown snapshot is a different memo entry")
	assert.Equal(t, 3, r.MemoSize())
}

func TestForkCopiesMemo(t *testing.T) {
	calls := 0
	ref := countingRef("title", &calls)
	snap := ir.NewSnapshot([2]string{"title", "f-1"})
	r := New()
	_, err := r.Resolve("a", ref, snap)
	require.NoError(t, err)

	fork := r.Fork()
	_, err = fork.Resolve("a", ref, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = fork.Resolve("z", ref, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, r.MemoSize())
}

func TestDetectCycleMutual(t *testing.T) {
	pending := map[string][]string{"p": {"q"}, "q": {"p"}}

	err := DetectCycle("p", pending, ir.NewSnapshot())
	require.Error(t, err)

	var ce *CircularReferenceError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"p", "q", "p"}, ce.Path)
	assert.True(t, IsCircularReference(err))
	assert.Contains(t, err.Error(), "p -> q -> p")
}

func TestDetectCycleSelf(t *testing.T) {
	err := DetectCycle("p", map[string][]string{"p": {"p"}}, ir.NewSnapshot())
	require.Error(t, err)
	assert.True(t, IsCircularReference(err))
}

func TestDetectCycleIndirect(t *testing.T) {
	pending := map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"b"}}

	var ce *CircularReferenceError
	require.True(t, errors.As(DetectCycle("a", pending, ir.NewSnapshot()), &ce))
	assert.Equal(t, []string{"a", "b", "c", "b"}, ce.Path)
}

func TestDetectCycleStopsAtMaterializedFields(t *testing.T) {
	pending := map[string][]string{"p": {"q"}, "q": {"p"}}
	snap := ir.NewSnapshot([2]string{"q", "f-1"})

	assert.NoError(t, DetectCycle("p", pending, snap))
}

func TestDetectCycleIgnoresUnknownTargets(t *testing.T) {
	pending := map[string][]string{"slug": {"title"}}
	assert.NoError(t, DetectCycle("slug", pending, ir.NewSnapshot()))
}

func TestDetectCycleDiamondIsNotACycle(t *testing.T) {
	pending := map[string][]string{"a": {"b", "c"}, "b": {"d"}, "c": {"d"}, "d": nil}
	assert.NoError(t, DetectCycle("a", pending, ir.NewSnapshot()))
}
