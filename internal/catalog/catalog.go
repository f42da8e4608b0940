// Package catalog holds the default badges and categories shipped with the
// binary. Both lists are YAML files embedded at build time and decoded into
// model records ready for the repositories' Upsert.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/sakif/habitquest/internal/model"
)

//go:embed badges.yaml
var badgesYAML []byte

//go:embed categories.yaml
var categoriesYAML []byte

type badgeEntry struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Type        model.BadgeType   `yaml:"type"`
	Rarity      model.BadgeRarity `yaml:"rarity"`
	Criteria    yaml.Node         `yaml:"criteria"`
	Points      int               `yaml:"points"`
}

// Badges returns the default badge catalog.
func Badges() ([]model.Badge, error) {
	return ParseBadges(badgesYAML)
}

// ParseBadges decodes a badge catalog document. Each entry's criteria block is
// decoded into the record its type calls for and validated.
func ParseBadges(data []byte) ([]model.Badge, error) {
	var doc struct {
		Badges []badgeEntry `yaml:"badges"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parsing badges: %w", err)
	}

	seen := make(map[string]bool, len(doc.Badges))
	badges := make([]model.Badge, 0, len(doc.Badges))
	for _, e := range doc.Badges {
		if e.Name == "" {
			return nil, fmt.Errorf("catalog: badge without a name")
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("catalog: duplicate badge %q", e.Name)
		}
		seen[e.Name] = true

		if !e.Rarity.Valid() {
			return nil, fmt.Errorf("catalog: badge %q: unknown rarity %q", e.Name, e.Rarity)
		}
		c, err := model.NewCriteria(e.Type)
		if err != nil {
			return nil, fmt.Errorf("catalog: badge %q: %w", e.Name, err)
		}
		if err := e.Criteria.Decode(c); err != nil {
			return nil, fmt.Errorf("catalog: badge %q criteria: %w", e.Name, err)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("catalog: badge %q criteria: %w", e.Name, err)
		}

		badges = append(badges, model.Badge{
			Name:        e.Name,
			Description: e.Description,
			Type:        e.Type,
			Rarity:      e.Rarity,
			Criteria:    c,
			Points:      e.Points,
		})
	}
	return badges, nil
}

// Categories returns the default category list.
func Categories() ([]model.Category, error) {
	var doc struct {
		Categories []struct {
			Name string `yaml:"name"`
			Icon string `yaml:"icon"`
		} `yaml:"categories"`
	}
	if err := yaml.Unmarshal(categoriesYAML, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parsing categories: %w", err)
	}

	out := make([]model.Category, 0, len(doc.Categories))
	for _, c := range doc.Categories {
		out = append(out, model.Category{Name: c.Name, Icon: c.Icon})
	}
	return out, nil
}
