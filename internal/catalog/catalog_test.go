// SPDX-License-Identifier: MIT

package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfnrdh/tensorflow-datasets/internal/features"
)

func TestParseVersion(t *testing.T) {
	cases := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"3.0.1", Version{3, 0, 1}, false},
		{"0.0.1", Version{0, 0, 1}, false},
		{"10.20.30", Version{10, 20, 30}, false},
		{"3.0", Version{}, true},
		{"3.0.1.2", Version{}, true},
		{"3.0.x", Version{}, true},
		{"3.0.-1", Version{}, true},
		{"3.0.+1", Version{}, true},
		{"", Version{}, true},
		{"v3.0.1", Version{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseVersion(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.in, got.String())
		})
	}
}

func TestVersionCompare(t *testing.T) {
	assert.Equal(t, 0, MustVersion("1.2.3").Compare(MustVersion("1.2.3")))
	assert.Equal(t, -1, MustVersion("1.2.3").Compare(MustVersion("1.2.4")))
	assert.Equal(t, 1, MustVersion("2.0.0").Compare(MustVersion("1.9.9")))
	assert.Equal(t, -1, MustVersion("1.9.9").Compare(MustVersion("1.10.0")))
}

func TestVersionTextRoundTrip(t *testing.T) {
	out, err := json.Marshal(MustVersion("3.0.1"))
	require.NoError(t, err)
	assert.Equal(t, `"3.0.1"`, string(out))

	var v Version
	require.NoError(t, json.Unmarshal([]byte(`"3.0.1"`), &v))
	assert.Equal(t, Version{3, 0, 1}, v)

	// zero version travels as the empty string
	out, err = json.Marshal(Version{})
	require.NoError(t, err)
	assert.Equal(t, `""`, string(out))
	require.NoError(t, json.Unmarshal([]byte(`""`), &v))
	assert.True(t, v.IsZero())
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"C4", "c4"},
		{"c4", "c4"},
		{"en.noclean", "en.noclean"},
		{"Plant Leaves", "plant_leaves"},
		{"plant-leaves", "plant_leaves"},
		{"  spaced   out  ", "spaced_out"},
		{"__already__snaked__", "already_snaked"},
		{"Café", "caf"},
		{"...", ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestIsNormalized(t *testing.T) {
	assert.True(t, IsNormalized("c4"))
	assert.True(t, IsNormalized("en.noclean"))
	assert.False(t, IsNormalized("C4"))
	assert.False(t, IsNormalized(""))
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "c4/en.noclean", FullName("c4", "en.noclean"))
	assert.Equal(t, "plant_leaves", FullName("plant_leaves", "plant_leaves"))
	assert.Equal(t, "plant_leaves", FullName("plant_leaves", ""))
}

func validInfo() *DatasetInfo {
	return &DatasetInfo{
		Name:        "c4",
		Description: "A colossal, cleaned version of Common Crawl's web crawl corpus.",
		Homepage:    "https://github.com/google-research/text-to-text-transfer-transformer#datasets",
		Citation:    "@article{2019t5, title = {Exploring the Limits}}",
		Version:     MustVersion("3.0.1"),
		Features: features.MustDict(map[string]features.Spec{
			"text": features.Text{},
			"url":  features.Text{},
		}),
		URLs: []string{"https://commoncrawl.org"},
		Configs: []ConfigInfo{
			{Name: "en", Description: "cleaned English", SizeBytes: 866446240153},
			{Name: "en.noclean", Description: "unfiltered English", SizeBytes: SizeUnknown},
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validInfo().Validate())

	t.Run("bad dataset name", func(t *testing.T) {
		d := validInfo()
		d.Name = "C4"
		require.Error(t, d.Validate())
	})

	t.Run("missing version", func(t *testing.T) {
		d := validInfo()
		d.Version = Version{}
		require.Error(t, d.Validate())
	})

	t.Run("duplicate config", func(t *testing.T) {
		d := validInfo()
		d.Configs = append(d.Configs, ConfigInfo{Name: "en"})
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate config")
	})

	t.Run("bad config name", func(t *testing.T) {
		d := validInfo()
		d.Configs[0].Name = "En Glish"
		require.Error(t, d.Validate())
	})

	t.Run("supervised keys must exist", func(t *testing.T) {
		d := validInfo()
		d.Supervised = &SupervisedKeys{Input: "text", Target: "label"}
		err := d.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"label"`)

		d.Supervised = &SupervisedKeys{Input: "text", Target: "url"}
		require.NoError(t, d.Validate())
	})

	t.Run("supervised keys need a schema", func(t *testing.T) {
		d := validInfo()
		d.Features = nil
		d.Supervised = &SupervisedKeys{Input: "text", Target: "url"}
		require.Error(t, d.Validate())
	})
}

func TestEffectiveConfigsInheritance(t *testing.T) {
	d := validInfo()
	cfgs := d.EffectiveConfigs()
	require.Len(t, cfgs, 2)

	// version, schema and urls flow down when a variant does not override
	assert.Equal(t, d.Version, cfgs[0].Version)
	assert.Equal(t, d.Features, cfgs[0].Features)
	assert.Equal(t, d.URLs, cfgs[0].URLs)

	// overrides stay put
	d.Configs[1].Version = MustVersion("2.2.0")
	d.Configs[1].URLs = []string{"https://example.org/variant"}
	cfgs = d.EffectiveConfigs()
	assert.Equal(t, MustVersion("2.2.0"), cfgs[1].Version)
	assert.Equal(t, []string{"https://example.org/variant"}, cfgs[1].URLs)

	// the stored record is untouched by resolution
	assert.True(t, d.Configs[0].Version.IsZero())
}

func TestEffectiveConfigsImplicit(t *testing.T) {
	d := &DatasetInfo{
		Name:     "plant_leaves",
		Version:  MustVersion("0.1.0"),
		Features: features.MustDict(map[string]features.Spec{"image": features.Image{}}),
		URLs:     []string{"https://data.mendeley.com/datasets/hb74ynkjcn/1"},
	}
	cfgs := d.EffectiveConfigs()
	require.Len(t, cfgs, 1)
	assert.Equal(t, "plant_leaves", cfgs[0].Name)
	assert.Equal(t, d.Version, cfgs[0].Version)
	assert.Equal(t, SizeUnknown, cfgs[0].SizeBytes)
	assert.Equal(t, d.Features, cfgs[0].Features)
}

func TestConfigLookup(t *testing.T) {
	d := validInfo()
	c, ok := d.Config("en.noclean")
	require.True(t, ok)
	assert.Equal(t, "unfiltered English", c.Description)

	_, ok = d.Config("de")
	assert.False(t, ok)
}

func TestDatasetJSONRoundTrip(t *testing.T) {
	d := validInfo()
	raw, err := json.Marshal(d)
	require.NoError(t, err)

	var back DatasetInfo
	require.NoError(t, json.Unmarshal(raw, &back))

	assert.Equal(t, d.Name, back.Name)
	assert.Equal(t, d.Version, back.Version)
	require.Len(t, back.Configs, 2)
	assert.Equal(t, d.Configs[0].SizeBytes, back.Configs[0].SizeBytes)
	require.NotNil(t, back.Features)
	assert.Equal(t, d.Features.SchemaText(), back.Features.SchemaText())
	require.NoError(t, back.Validate())
}
