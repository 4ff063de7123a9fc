package item

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Template describes an item entry: how it stacks and binds.
type Template struct {
	Entry        uint32 `yaml:"entry"`
	Name         string `yaml:"name"`
	MaxStack     uint32 `yaml:"max_stack"`
	BindOnPickup bool   `yaml:"bind_on_pickup"`
	QuestItem    bool   `yaml:"quest_item"`
	BagSize      uint8  `yaml:"bag_size"`
}

// Catalog maps entry ids to templates.
type Catalog struct {
	templates map[uint32]*Template
}

type catalogFile struct {
	Items []*Template `yaml:"items"`
}

// LoadCatalog reads an item catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("item catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML document of the form:
//
//	items:
//	  - entry: 2589
//	    name: Linen Cloth
//	    max_stack: 200
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("item catalog: %w", err)
	}
	c := &Catalog{templates: make(map[uint32]*Template, len(f.Items))}
	for _, t := range f.Items {
		if t == nil || t.Entry == 0 {
			return nil, fmt.Errorf("item catalog: entry id is required")
		}
		if _, dup := c.templates[t.Entry]; dup {
			return nil, fmt.Errorf("item catalog: duplicate entry %d", t.Entry)
		}
		if t.MaxStack == 0 {
			t.MaxStack = 1
		}
		c.templates[t.Entry] = t
	}
	return c, nil
}

// Template returns the template for entry, or nil.
func (c *Catalog) Template(entry uint32) *Template {
	if c == nil {
		return nil
	}
	return c.templates[entry]
}

// Len returns the number of templates.
func (c *Catalog) Len() int { return len(c.templates) }

// NewStack creates a stack of count items of entry. Bind-on-pickup items
// come out soulbound and quest items untradeable.
func (c *Catalog) NewStack(entry, count uint32) (*Stack, error) {
	t := c.Template(entry)
	if t == nil {
		return nil, fmt.Errorf("item catalog: unknown entry %d", entry)
	}
	if count == 0 || count > t.MaxStack {
		return nil, fmt.Errorf("item catalog: count %d out of range for entry %d", count, entry)
	}
	s := NewStack(entry, count, t.MaxStack)
	s.Soulbound = t.BindOnPickup
	s.Tradeable = !t.QuestItem
	s.BagSize = t.BagSize
	if t.BagSize > 0 {
		s.Contents = make([]*Stack, t.BagSize)
	}
	return s, nil
}
