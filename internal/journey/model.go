package journey

import (
	"slices"

	"github.com/dividis/backend/internal/catalog"
)

// Pilar holds the sentences a user wrote for one pilar of a category.
type Pilar struct {
	Name      string   `json:"name"`
	Sentences []string `json:"sentences"`
}

// Category is one node of the journey tree.
type Category struct {
	Name   string  `json:"name"`
	Pilars []Pilar `json:"pilars"`
}

type categoriesDocument struct {
	Categories []Category `json:"categories"`
}

func newCategory(name string) Category {
	names := catalog.Pilars()
	pilars := make([]Pilar, 0, len(names))
	for _, pilar := range names {
		pilars = append(pilars, Pilar{Name: pilar, Sentences: []string{}})
	}
	return Category{Name: name, Pilars: pilars}
}

// Clone returns a deep copy.
func (c Category) Clone() Category {
	pilars := make([]Pilar, 0, len(c.Pilars))
	for _, pilar := range c.Pilars {
		sentences := slices.Clone(pilar.Sentences)
		if sentences == nil {
			sentences = []string{}
		}
		pilars = append(pilars, Pilar{Name: pilar.Name, Sentences: sentences})
	}
	return Category{Name: c.Name, Pilars: pilars}
}

func (c *Category) pilar(name string) *Pilar {
	for index := range c.Pilars {
		if c.Pilars[index].Name == name {
			return &c.Pilars[index]
		}
	}
	return nil
}

func cloneCategories(categories []Category) []Category {
	cloned := make([]Category, 0, len(categories))
	for _, category := range categories {
		cloned = append(cloned, category.Clone())
	}
	return cloned
}

func indexOfCategory(categories []Category, name string) int {
	for index := range categories {
		if categories[index].Name == name {
			return index
		}
	}
	return -1
}
