// Package catalog provides the read-only technique catalog the orchestrator
// draws candidate attack categories from, plus coverage tracking of how much
// of the catalog an evaluation has exercised.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

// TechniqueRef is one cataloged attack pattern from the external taxonomy.
type TechniqueRef struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Category    string         `yaml:"category" json:"category"`
	Severity    types.Severity `yaml:"severity" json:"severity"`
	Tactics     []string       `yaml:"tactics,omitempty" json:"tactics,omitempty"`
	Profiles    []string       `yaml:"profiles,omitempty" json:"profiles,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
}

// Profile describes the subject under evaluation for technique lookup.
// Techniques listing no profiles apply to every subject.
type Profile struct {
	Name string   `yaml:"name" json:"name"`
	Tags []string `yaml:"tags" json:"tags"`
}

// Catalog is an immutable technique catalog loaded at run start.
type Catalog struct {
	Taxonomy   string         `yaml:"taxonomy" json:"taxonomy"`
	Techniques []TechniqueRef `yaml:"techniques" json:"techniques"`

	byID       map[string]TechniqueRef
	byCategory map[string][]TechniqueRef
}

// Load parses a technique catalog from YAML.
func Load(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, types.WrapError(types.CATALOG_PARSE_FAILED, "failed to parse catalog", err)
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile reads and parses a technique catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.CATALOG_LOAD_FAILED, fmt.Sprintf("failed to read catalog %s", path), err)
	}
	return Load(data)
}

func (c *Catalog) init() error {
	if len(c.Techniques) == 0 {
		return types.NewError(types.CATALOG_PARSE_FAILED, "catalog contains no techniques")
	}

	c.byID = make(map[string]TechniqueRef, len(c.Techniques))
	c.byCategory = make(map[string][]TechniqueRef)
	for _, t := range c.Techniques {
		if t.ID == "" || t.Category == "" {
			return types.NewError(types.CATALOG_PARSE_FAILED,
				fmt.Sprintf("technique %q must carry an id and category", t.Name))
		}
		if !t.Severity.IsValid() {
			return types.NewError(types.CATALOG_PARSE_FAILED,
				fmt.Sprintf("technique %s carries unknown severity %q", t.ID, t.Severity))
		}
		if _, dup := c.byID[t.ID]; dup {
			return types.NewError(types.CATALOG_PARSE_FAILED,
				fmt.Sprintf("duplicate technique id %s", t.ID))
		}
		c.byID[t.ID] = t
		c.byCategory[t.Category] = append(c.byCategory[t.Category], t)
	}
	return nil
}

// Technique returns the technique with the given ID.
func (c *Catalog) Technique(id string) (TechniqueRef, error) {
	t, ok := c.byID[id]
	if !ok {
		return TechniqueRef{}, types.NewError(types.TECHNIQUE_NOT_FOUND, fmt.Sprintf("technique %s not in catalog", id))
	}
	return t, nil
}

// Lookup enumerates candidate techniques for a subject profile. A technique
// matches when it declares no profiles or when any declared profile matches
// the subject's name or one of its tags.
func (c *Catalog) Lookup(profile Profile) []TechniqueRef {
	tags := make(map[string]bool, len(profile.Tags)+1)
	if profile.Name != "" {
		tags[profile.Name] = true
	}
	for _, t := range profile.Tags {
		tags[t] = true
	}

	var out []TechniqueRef
	for _, t := range c.Techniques {
		if len(t.Profiles) == 0 {
			out = append(out, t)
			continue
		}
		for _, p := range t.Profiles {
			if tags[p] {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Categories returns the distinct categories among the given techniques,
// sorted for deterministic allocator candidate ordering.
func Categories(techniques []TechniqueRef) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range techniques {
		if !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	sort.Strings(out)
	return out
}

// ByCategory returns the catalog's techniques in the given category.
func (c *Catalog) ByCategory(category string) []TechniqueRef {
	return c.byCategory[category]
}

// Size returns the number of techniques in the catalog.
func (c *Catalog) Size() int {
	return len(c.Techniques)
}
