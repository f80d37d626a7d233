package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"saged/internal/config"
	"saged/internal/logging"
)

// descriptorFile is the on-disk YAML form of a descriptor bundle.
type descriptorFile struct {
	Descriptors []config.DescriptorSpec `yaml:"descriptors"`
}

// LoadFile reads one descriptor YAML file and validates its specs.
func LoadFile(path string) ([]config.DescriptorSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logging.Audit().DescriptorReload(path, 0, false, err.Error())
		return nil, fmt.Errorf("reading descriptor file %s: %w", path, err)
	}

	var file descriptorFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		logging.Audit().DescriptorReload(path, 0, false, err.Error())
		return nil, fmt.Errorf("parsing descriptor file %s: %w", path, err)
	}

	if err := ValidateSpecs(file.Descriptors); err != nil {
		logging.Audit().DescriptorReload(path, 0, false, err.Error())
		return nil, fmt.Errorf("descriptor file %s: %w", path, err)
	}

	logging.Audit().DescriptorReload(path, len(file.Descriptors), true, "")
	logging.Descriptor("Loaded %d descriptor specs from %s", len(file.Descriptors), path)
	return file.Descriptors, nil
}

// LoadDir reads every *.yaml / *.yml file in dir, sorted by name so the
// merge order is stable. A missing directory is not an error: it just
// yields no specs.
func LoadDir(dir string) ([]config.DescriptorSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading descriptor dir %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var specs []config.DescriptorSpec
	for _, name := range names {
		loaded, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		specs = append(specs, loaded...)
	}
	return specs, nil
}

// CollectSpecs merges the inline specs with those from explicit files
// and the descriptor directory, in that order. Later specs for a pair
// extend the earlier set rather than replacing it.
func CollectSpecs(cfg config.BranchingConfig, dir string) ([]config.DescriptorSpec, error) {
	if err := ValidateSpecs(cfg.Descriptors); err != nil {
		return nil, fmt.Errorf("inline descriptors: %w", err)
	}
	specs := append([]config.DescriptorSpec(nil), cfg.Descriptors...)

	for _, path := range cfg.DescriptorFiles {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		specs = append(specs, loaded...)
	}

	if dir != "" {
		loaded, err := LoadDir(dir)
		if err != nil {
			return nil, err
		}
		specs = append(specs, loaded...)
	}
	return specs, nil
}

// ValidateSpecs checks that every spec names a stem and a distinct
// branch and that no replacement pair is half-empty.
func ValidateSpecs(specs []config.DescriptorSpec) error {
	for i, spec := range specs {
		if strings.TrimSpace(spec.Stem) == "" {
			return fmt.Errorf("descriptor %d: stem is empty", i)
		}
		if strings.TrimSpace(spec.Branch) == "" {
			return fmt.Errorf("descriptor %d (%s): branch is empty", i, spec.Stem)
		}
		if strings.EqualFold(spec.Stem, spec.Branch) {
			return fmt.Errorf("descriptor %d: stem and branch are both %q", i, spec.Stem)
		}
		for j, pair := range spec.Pairs {
			if strings.TrimSpace(pair.Original) == "" || strings.TrimSpace(pair.Replacement) == "" {
				return fmt.Errorf("descriptor %d (%s->%s): pair %d is incomplete", i, spec.Stem, spec.Branch, j)
			}
		}
	}
	return nil
}

// FromSpecs builds a catalog from validated specs. Specs for the same
// pair accumulate entries in order; duplicate keywords keep their first
// replacement.
func FromSpecs(specs []config.DescriptorSpec) *Catalog {
	catalog := NewCatalog()
	for _, spec := range specs {
		set, ok := catalog.Get(spec.Stem, spec.Branch)
		if !ok {
			set = &Set{Stem: spec.Stem, Branch: spec.Branch}
			catalog.Add(set)
		}
		for _, pair := range spec.Pairs {
			set.Add(Entry{Keyword: pair.Original, Replacement: pair.Replacement})
		}
	}
	return catalog
}
