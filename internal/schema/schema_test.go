package schema

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemasync/internal/ir"
)

func article(t *testing.T, fields ...Field) *ItemDefinition {
	t.Helper()
	def, err := NewModel("Article").AddFields(fields...).Build()
	require.NoError(t, err)
	return def
}

func TestDeriveAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		suffixes []string
		expected string
	}{
		{"Article", nil, "article"},
		{"Blog Post", nil, "blog_post"},
		{"BlogPost", nil, "blog_post"},
		{"  Caf\u00e9  Menu!! ", nil, "cafe_menu"},
		{"Hero", []string{"block"}, "hero_block"},
		{"Hero", []string{"block", "", "Staging"}, "hero_block_staging"},
		{"Item2Type", nil, "item2_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DeriveAPIKey(tt.name, tt.suffixes...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, key)
		})
	}
}

func TestDeriveAPIKeyRejectsUnusableNames(t *testing.T) {
	for _, name := range []string{"", "!!!", "2fast"} {
		_, err := DeriveAPIKey(name)
		require.Error(t, err, name)
		assert.True(t, IsValidationError(err))
	}
}

func TestNamingItemAPIKey(t *testing.T) {
	key, err := Naming{}.ItemAPIKey(KindBlock, "Hero")
	require.NoError(t, err)
	assert.Equal(t, "hero_block", key)

	key, err = Naming{BlockSuffix: "-", APIKeySuffix: "v2"}.ItemAPIKey(KindBlock, "Hero")
	require.NoError(t, err)
	assert.Equal(t, "hero_v2", key)

	key, err = Naming{APIKeySuffix: "v2"}.ItemAPIKey(KindModel, "Hero")
	require.NoError(t, err)
	assert.Equal(t, "hero_v2", key)
}

func TestValidatorsRejectInvalidCombinations(t *testing.T) {
	tests := []struct {
		name string
		v    Validator
	}{
		{"length without bounds", Length(Bounds{})},
		{"length eq with min", Length(Bounds{Eq: Int(3), Min: Int(1)})},
		{"range min above max", NumberRange(Bounds{Min: Int(5), Max: Int(1)})},
		{"format without pattern", Format("", "")},
		{"format with both", Format("email", "^a$")},
		{"empty enum", Enum()},
		{"link without types", ItemItemType()},
		{"slug without title", SlugTitleField("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.v.Err())
			assert.True(t, IsValidationError(tt.v.Err()))
		})
	}
}

func TestValidatorParams(t *testing.T) {
	assert.Equal(t, ir.IRObject{"min": ir.IRInt(1), "max": ir.IRInt(5)}, Length(Bounds{Min: Int(1), Max: Int(5)}).Params)
	assert.Equal(t, ir.IRObject{"eq": ir.IRInt(2)}, Size(Bounds{Eq: Int(2)}).Params)
	assert.Equal(t, ir.IRObject{"min": ir.IRInt(2), "max": ir.IRInt(2)}, NumberRange(Bounds{Eq: Int(2)}).Params)
	assert.Equal(t, ir.IRObject{"values": ir.IRArray{ir.IRString("a")}}, Enum("a").Params)
	assert.Equal(t, ir.IRObject{"predefined_pattern": ir.IRString("email")}, Format("email", "").Params)
}

func TestBuildSurfacesFieldValidationErrors(t *testing.T) {
	_, err := NewModel("Article").
		AddField(SingleLineString("Title", WithValidators(Length(Bounds{})))).
		Build()

	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "item=Article")
	assert.Contains(t, err.Error(), "field=title")
	assert.Contains(t, err.Error(), "validator=length")
}

func TestBuildRejectsDuplicateFieldAPIKeys(t *testing.T) {
	_, err := NewModel("Article").
		AddFields(SingleLineString("Title"), Boolean("title")).
		Build()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate field api key")
}

func TestBuildRejectsBadExplicitAPIKeys(t *testing.T) {
	_, err := NewModel("Article", WithAPIKey("Bad Key")).Build()
	require.Error(t, err)

	_, err = NewModel("Article").AddField(Boolean("Flag", WithFieldAPIKey("Flag"))).Build()
	require.Error(t, err)
}

func TestBuildRejectsMissingNameAndKind(t *testing.T) {
	_, err := NewModel("").Build()
	require.Error(t, err)

	_, err = NewItem(Kind("page"), "X").Build()
	require.Error(t, err)
}

func TestBuildAssignsPositionsAndAPIKeys(t *testing.T) {
	def, err := NewBlock("Call To Action", WithNaming(Naming{APIKeySuffix: "dev"})).
		AddFields(SingleLineString("Label"), Boolean("Primary?")).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "call_to_action_block_dev", def.APIKey)
	assert.Equal(t, "block:Call To Action", def.Key())
	require.Len(t, def.Fields, 2)
	assert.Equal(t, "label", def.Fields[0].APIKey)
	assert.Equal(t, 1, def.Fields[0].Position)
	assert.Equal(t, "primary", def.Fields[1].APIKey)
	assert.Equal(t, 2, def.Fields[1].Position)
}

func TestBuiltDefinitionIsIsolatedFromBuilder(t *testing.T) {
	cfg := ir.IRObject{"hint": ir.IRString("x")}
	b := NewModel("Article", WithConfig(cfg)).AddField(SingleLineString("Title"))
	def, err := b.Build()
	require.NoError(t, err)

	cfg["hint"] = ir.IRString("changed")
	b.AddField(Boolean("Extra"))

	assert.Equal(t, ir.IRString("x"), def.Config["hint"])
	assert.Len(t, def.Fields, 1)
}

func TestBodyOwnsReservedKeys(t *testing.T) {
	def, err := NewBlock("Hero", WithConfig(ir.IRObject{
		"name":     ir.IRString("spoofed"),
		"sortable": ir.IRBool(true),
	})).Build()
	require.NoError(t, err)

	body := def.Body()
	assert.Equal(t, ir.IRString("Hero"), body["name"])
	assert.Equal(t, ir.IRString("hero_block"), body["api_key"])
	assert.Equal(t, ir.IRBool(true), body["modular_block"])
	assert.Equal(t, ir.IRBool(true), body["sortable"])
}

func TestFieldReferences(t *testing.T) {
	f := NewField(TypeLinks, "Related", WithValidators(
		ItemsItemType(ir.FieldRef("b"), ir.IRString("x"), ir.FieldRef("a")),
		SlugTitleField("b"),
	))

	assert.Equal(t, []string{"b", "a"}, f.def.References())
}

func TestFieldBodyIncludesPosition(t *testing.T) {
	def := article(t, SingleLineString("Title"))

	body := def.Fields[0].Body()
	assert.Equal(t, ir.IRInt(1), body["position"])
	_, hasPosition := def.Fields[0].Document()["position"]
	assert.False(t, hasPosition)
}

func TestFingerprintIgnoresDeclarationOrder(t *testing.T) {
	a := article(t, SingleLineString("Title"), Slug("Slug", "title"))
	b := article(t, Slug("Slug", "title"), SingleLineString("Title"))

	fpA, err := a.Fingerprint(Naming{})
	require.NoError(t, err)
	fpB, err := b.Fingerprint(Naming{})
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB)
}

func TestFingerprintDetectsSemanticChanges(t *testing.T) {
	base := article(t, SingleLineString("Title"))
	fp, err := base.Fingerprint(Naming{})
	require.NoError(t, err)

	changed := map[string]*ItemDefinition{
		"validator": article(t, SingleLineString("Title", WithValidators(Required()))),
		"api key":   article(t, SingleLineString("Title", WithFieldAPIKey("headline"))),
		"extra":     article(t, SingleLineString("Title"), Boolean("Draft")),
	}
	for name, def := range changed {
		other, err := def.Fingerprint(Naming{})
		require.NoError(t, err)
		assert.NotEqual(t, fp, other, name)
	}

	withHint, err := NewModel("Article", WithConfig(ir.IRObject{"hint": ir.IRString("h")})).
		AddField(SingleLineString("Title")).Build()
	require.NoError(t, err)
	other, err := withHint.Fingerprint(Naming{})
	require.NoError(t, err)
	assert.NotEqual(t, fp, other, "item body")

	other, err = base.Fingerprint(Naming{APIKeySuffix: "dev"})
	require.NoError(t, err)
	assert.NotEqual(t, fp, other, "naming policy")
}

func TestDocumentGolden(t *testing.T) {
	def := article(t,
		SingleLineString("Title", WithValidators(Required())),
		Slug("Slug", "title"),
	)

	doc, err := ir.MarshalCanonical(def.Document(Naming{}))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "article_document", doc)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("block")
	require.NoError(t, err)
	assert.Equal(t, KindBlock, k)

	_, err = ParseKind("page")
	require.Error(t, err)
}
