package accent

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Candidate is one accent the detector scores against.
type Candidate struct {
	Label  string  `yaml:"label" json:"label"`
	Locale string  `yaml:"locale" json:"locale"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Profile holds the lexical evidence and prior multiplier for one locale.
type Profile struct {
	Weight float64  `yaml:"weight" json:"weight"`
	Strong []string `yaml:"strong" json:"strong"`
	Medium []string `yaml:"medium" json:"medium"`
	Weak   []string `yaml:"weak" json:"weak"`
}

// UnmarshalYAML gives a profile without a weight key the neutral weight 1.0,
// while an explicit 0 is kept.
func (p *Profile) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Weight *float64 `yaml:"weight"`
		Strong []string `yaml:"strong"`
		Medium []string `yaml:"medium"`
		Weak   []string `yaml:"weak"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*p = Profile{Weight: defaultLocaleWeight, Strong: raw.Strong, Medium: raw.Medium, Weak: raw.Weak}
	if raw.Weight != nil {
		p.Weight = *raw.Weight
	}
	return nil
}

// Catalog is the read-only configuration shared by every detection: the
// candidate set in declaration order and the per-locale scoring profiles.
type Catalog struct {
	Candidates []Candidate        `yaml:"candidates"`
	Profiles   map[string]Profile `yaml:"profiles"`
}

// DefaultCandidates returns the built-in candidate set.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{Label: "American", Locale: "en-US", Weight: 1.2},
		{Label: "British", Locale: "en-GB", Weight: 1.0},
		{Label: "Australian", Locale: "en-AU", Weight: 1.0},
		{Label: "Indian", Locale: "en-IN", Weight: 1.0},
	}
}

// DefaultProfiles returns the built-in pattern tables.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"en-US": {
			Weight: 1.15,
			Strong: []string{"gonna", "wanna", "y'all"},
			Medium: []string{"yeah", "awesome", "totally", "dude"},
			Weak:   []string{"hey", "cool", "like", "guys"},
		},
		"en-GB": {
			Weight: 1.25,
			Strong: []string{"mate", "bloody", "proper"},
			Medium: []string{"cheers", "brilliant", "quite"},
			Weak:   []string{"rather", "indeed", "fancy"},
		},
		"en-AU": {
			Weight: 1.2,
			Strong: []string{"g'day", "crikey", "strewth"},
			Medium: []string{"mate", "reckon", "fair"},
			Weak:   []string{"bloody", "beauty", "bonza"},
		},
		"en-IN": {
			Weight: 1.2,
			Strong: []string{"kindly", "itself", "needful"},
			Medium: []string{"actually", "basically", "only"},
			Weak:   []string{"please", "doing", "tell"},
		},
	}
}

func DefaultCatalog() *Catalog {
	return &Catalog{Candidates: DefaultCandidates(), Profiles: DefaultProfiles()}
}

// LoadCatalog reads a YAML catalog from path. An empty path yields the
// defaults; sections missing from the file fall back to their defaults and a
// profile without a weight gets 1.0.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse candidates file: %w", err)
	}
	if len(c.Candidates) == 0 {
		c.Candidates = DefaultCandidates()
	}
	if len(c.Profiles) == 0 {
		c.Profiles = DefaultProfiles()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that labels are unique and weights are finite and
// non-negative.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Candidates))
	for i, cand := range c.Candidates {
		if strings.TrimSpace(cand.Label) == "" || strings.TrimSpace(cand.Locale) == "" {
			return fmt.Errorf("candidate %d: label and locale are required", i)
		}
		if seen[cand.Label] {
			return fmt.Errorf("candidate %q declared twice", cand.Label)
		}
		seen[cand.Label] = true
		if cand.Weight < 0 || math.IsNaN(cand.Weight) || math.IsInf(cand.Weight, 0) {
			return fmt.Errorf("candidate %q: weight must be a finite number >= 0", cand.Label)
		}
	}
	for locale, p := range c.Profiles {
		if p.Weight < 0 || math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) {
			return fmt.Errorf("profile %q: weight must be a finite number >= 0", locale)
		}
	}
	return nil
}
