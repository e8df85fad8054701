// SPDX-License-Identifier: MIT

package builder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime/types"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/irfnrdh/tensorflow-datasets/internal/catalog"
	"github.com/irfnrdh/tensorflow-datasets/internal/download"
	"github.com/irfnrdh/tensorflow-datasets/internal/features"
	"github.com/irfnrdh/tensorflow-datasets/internal/log"
)

// Manifest declares one dataset in YAML: its catalog facts, configuration
// variants and, optionally, the sources and label mapping that generate
// examples.
type Manifest struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description,omitempty"`
	Homepage    string                 `yaml:"homepage,omitempty"`
	Citation    string                 `yaml:"citation,omitempty"`
	Version     string                 `yaml:"version,omitempty"`
	ReleaseDate string                 `yaml:"releaseDate,omitempty"`
	Supervised  *ManifestSupervised    `yaml:"supervised,omitempty"`
	URLs        []string               `yaml:"urls,omitempty"`
	Features    map[string]*featureDTO `yaml:"features,omitempty"`
	Configs     []ManifestConfig       `yaml:"configs,omitempty"`
	Sources     []ManifestSource       `yaml:"sources,omitempty"`
	LabelMap    *ManifestLabelMap      `yaml:"labelMap,omitempty"`
}

type ManifestSupervised struct {
	Input  string `yaml:"input"`
	Target string `yaml:"target"`
}

type ManifestConfig struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description,omitempty"`
	Version     string                 `yaml:"version,omitempty"`
	SizeBytes   *int64                 `yaml:"sizeBytes,omitempty"`
	Features    map[string]*featureDTO `yaml:"features,omitempty"`
	URLs        []string               `yaml:"urls,omitempty"`
	Splits      map[string]int64       `yaml:"splits,omitempty"`
}

type ManifestSource struct {
	Name     string `yaml:"name,omitempty"`
	URL      string `yaml:"url"`
	Checksum string `yaml:"checksum,omitempty"`
}

// ManifestLabelMap turns downloaded files into labeled examples: filenames
// are matched against rules, unmatched files are skipped and counted.
type ManifestLabelMap struct {
	// URLsFile is an optional file (one URL per line, # comments) merged
	// with the inline sources. Relative paths resolve against the manifest
	// directory.
	URLsFile string              `yaml:"urlsFile,omitempty"`
	Split    string              `yaml:"split,omitempty"`
	Rules    []ManifestLabelRule `yaml:"rules"`
}

type ManifestLabelRule struct {
	Match string `yaml:"match"`
	Label string `yaml:"label"`
}

// featureDTO is the YAML shape of one feature spec. A bare string is
// shorthand for a kind without parameters ("text", "image").
type featureDTO struct {
	Kind  string      `yaml:"kind"`
	DType string      `yaml:"dtype,omitempty"`
	Shape []int       `yaml:"shape,omitempty"`
	Names []string    `yaml:"names,omitempty"`
	Elem  *featureDTO `yaml:"elem,omitempty"`
}

func (d *featureDTO) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		d.Kind = value.Value
		return nil
	}
	type plain featureDTO
	return value.Decode((*plain)(d))
}

func (d *featureDTO) spec() (features.Spec, error) {
	switch features.Kind(d.Kind) {
	case features.KindText:
		return features.Text{}, nil
	case features.KindImage:
		return features.Image{Shape: d.Shape}, nil
	case features.KindClassLabel:
		return features.NewClassLabel(d.Names)
	case features.KindScalar:
		dt := features.DType(d.DType)
		switch dt {
		case features.DTypeString, features.DTypeInt64, features.DTypeFloat32,
			features.DTypeUint8, features.DTypeBool:
		default:
			return nil, fmt.Errorf("scalar with unknown dtype %q", d.DType)
		}
		return features.Scalar{Type: dt}, nil
	case features.KindSequence:
		if d.Elem == nil {
			return nil, fmt.Errorf("sequence without elem")
		}
		elem, err := d.Elem.spec()
		if err != nil {
			return nil, err
		}
		return features.Sequence{Elem: elem}, nil
	default:
		return nil, fmt.Errorf("unknown feature kind %q", d.Kind)
	}
}

func dictFromDTO(m map[string]*featureDTO) (*features.Dict, error) {
	if len(m) == 0 {
		return nil, nil
	}
	fields := make(map[string]features.Spec, len(m))
	for name, dto := range m {
		spec, err := dto.spec()
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", name, err)
		}
		fields[name] = spec
	}
	return features.NewDict(fields)
}

// LoadManifest reads one YAML manifest strictly: unknown fields and trailing
// documents fail with the file name in the error.
func LoadManifest(mpath string) (*Manifest, error) {
	data, err := os.ReadFile(mpath) // #nosec G304 -- manifest paths come from the operator
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", mpath, err)
	}

	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("manifest %s: empty document", mpath)
		}
		return nil, fmt.Errorf("manifest %s: %w", mpath, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("manifest %s: contains multiple documents", mpath)
	}
	return &m, nil
}

// LoadManifestDir loads every *.yaml/*.yml manifest in a directory, sorted by
// file name.
func LoadManifestDir(dir string) ([]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	manifests := make([]*Manifest, 0, len(names))
	for _, name := range names {
		m, err := LoadManifest(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// RegisterManifests loads a manifest directory and registers one builder per
// manifest.
func RegisterManifests(reg *Registry, dir string) error {
	manifests, err := LoadManifestDir(dir)
	if err != nil {
		return err
	}
	for _, m := range manifests {
		b, err := NewManifestBuilder(m, dir)
		if err != nil {
			return err
		}
		if err := reg.Register(b); err != nil {
			return err
		}
	}
	return nil
}

// DatasetInfo converts the manifest into a validated catalog record.
func (m *Manifest) DatasetInfo() (*catalog.DatasetInfo, error) {
	info := &catalog.DatasetInfo{
		Name:        m.Name,
		Description: m.Description,
		Homepage:    m.Homepage,
		Citation:    m.Citation,
		URLs:        m.URLs,
	}

	if m.Version != "" {
		v, err := catalog.ParseVersion(m.Version)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", m.Name, err)
		}
		info.Version = v
	}

	if m.ReleaseDate != "" {
		t, err := time.Parse("2006-01-02", m.ReleaseDate)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: invalid releaseDate %q", m.Name, m.ReleaseDate)
		}
		info.ReleaseDate = &types.Date{Time: t}
	}

	if m.Supervised != nil {
		info.Supervised = &catalog.SupervisedKeys{
			Input:  m.Supervised.Input,
			Target: m.Supervised.Target,
		}
	}

	dict, err := dictFromDTO(m.Features)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", m.Name, err)
	}
	info.Features = dict

	for _, mc := range m.Configs {
		cfg := catalog.ConfigInfo{
			Name:        mc.Name,
			Description: mc.Description,
			SizeBytes:   catalog.SizeUnknown,
			URLs:        mc.URLs,
			Splits:      mc.Splits,
		}
		if mc.Version != "" {
			v, err := catalog.ParseVersion(mc.Version)
			if err != nil {
				return nil, fmt.Errorf("dataset %q config %q: %w", m.Name, mc.Name, err)
			}
			cfg.Version = v
		}
		if mc.SizeBytes != nil {
			cfg.SizeBytes = *mc.SizeBytes
		}
		cfgDict, err := dictFromDTO(mc.Features)
		if err != nil {
			return nil, fmt.Errorf("dataset %q config %q: %w", m.Name, mc.Name, err)
		}
		cfg.Features = cfgDict
		info.Configs = append(info.Configs, cfg)
	}

	if err := info.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}

// ManifestBuilder is the Builder a YAML manifest produces.
type ManifestBuilder struct {
	manifest *Manifest
	info     *catalog.DatasetInfo
	baseDir  string
	mapper   *LabelMapper

	// For label-mapped datasets: the schema field receiving the file path
	// and the class-label field receiving the mapped label.
	fileField  string
	labelField string

	logger zerolog.Logger
}

// NewManifestBuilder validates the manifest and prepares its label mapping.
// baseDir resolves relative file references (label-map URL lists).
func NewManifestBuilder(m *Manifest, baseDir string) (*ManifestBuilder, error) {
	info, err := m.DatasetInfo()
	if err != nil {
		return nil, err
	}

	b := &ManifestBuilder{
		manifest: m,
		info:     info,
		baseDir:  baseDir,
		logger:   log.WithComponent("builder").With().Str(log.FieldDataset, info.Name).Logger(),
	}

	if m.LabelMap != nil {
		if err := b.prepareLabelMap(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *ManifestBuilder) prepareLabelMap() error {
	lm := b.manifest.LabelMap
	mapper, err := NewLabelMapper(lm.Rules)
	if err != nil {
		return fmt.Errorf("dataset %q: %w", b.info.Name, err)
	}
	b.mapper = mapper

	// A label-mapped dataset needs a two-field schema: one class label and
	// one field for the file itself.
	dict := b.info.Features
	if dict.Len() != 2 {
		return fmt.Errorf("builder: dataset %q: label mapping needs a two-field schema (file + class label), got %d fields", b.info.Name, dict.Len())
	}
	for _, name := range dict.Names() {
		spec, _ := dict.Field(name)
		if cl, ok := spec.(*features.ClassLabel); ok {
			b.labelField = name
			for _, rule := range lm.Rules {
				if _, known := cl.Index(rule.Label); !known {
					return fmt.Errorf("builder: dataset %q: rule label %q is not a class of field %q", b.info.Name, rule.Label, name)
				}
			}
		} else {
			b.fileField = name
		}
	}
	if b.labelField == "" {
		return fmt.Errorf("builder: dataset %q: label mapping needs a class_label field", b.info.Name)
	}
	if b.fileField == "" {
		return fmt.Errorf("builder: dataset %q: label mapping needs a non-label field for the file", b.info.Name)
	}
	return nil
}

func (b *ManifestBuilder) Name() string { return b.info.Name }

func (b *ManifestBuilder) Info() (*catalog.DatasetInfo, error) { return b.info, nil }

// Splits returns the label-mapped split for datasets that generate examples;
// catalog-only manifests have none.
func (b *ManifestBuilder) Splits(ctx context.Context, dm *download.Manager) ([]SplitSource, error) {
	if b.mapper == nil {
		return nil, nil
	}
	reqs, err := b.sourceRequests()
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("builder: dataset %q declares a label map but no sources", b.info.Name)
	}

	splitName := b.manifest.LabelMap.Split
	if splitName == "" {
		splitName = "train"
	}

	src := SplitSource{
		Name: splitName,
		Generate: func(ctx context.Context, emit func(Example) error) error {
			results := dm.Fetch(ctx, reqs)
			examples, skipped, err := LabeledExamples(reqs, results, b.mapper, b.fileField, b.labelField)
			if err != nil {
				return fmt.Errorf("builder: dataset %q split %q: %w", b.info.Name, splitName, err)
			}
			if skipped > 0 {
				b.logger.Info().
					Int("skipped", skipped).
					Int("labeled", len(examples)).
					Msg("files without a label rule were skipped")
			}
			for _, ex := range examples {
				if err := emit(ex); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return []SplitSource{src}, nil
}

// sourceRequests merges the manifest's inline sources with its URL list file.
func (b *ManifestBuilder) sourceRequests() ([]download.Request, error) {
	var reqs []download.Request
	for _, s := range b.manifest.Sources {
		name := s.Name
		if name == "" {
			name = s.URL
		}
		reqs = append(reqs, download.Request{Name: name, URL: s.URL, Checksum: s.Checksum})
	}

	lm := b.manifest.LabelMap
	if lm == nil || lm.URLsFile == "" {
		return reqs, nil
	}
	p := lm.URLsFile
	if !filepath.IsAbs(p) {
		p = filepath.Join(b.baseDir, p)
	}
	f, err := os.Open(p) // #nosec G304 -- resolved against the manifest dir
	if err != nil {
		return nil, fmt.Errorf("builder: dataset %q: url list: %w", b.info.Name, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		reqs = append(reqs, download.Request{Name: line, URL: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("builder: dataset %q: url list: %w", b.info.Name, err)
	}
	return reqs, nil
}

// fileNameOf extracts the artifact's file name from its source URL.
func fileNameOf(rawURL string) string {
	if i := strings.Index(rawURL, "?"); i >= 0 {
		rawURL = rawURL[:i]
	}
	return path.Base(rawURL)
}
