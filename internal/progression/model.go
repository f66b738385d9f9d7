package progression

import (
	"slices"

	"github.com/dividis/backend/internal/catalog"
)

// ExperiencePerLevel is the experience needed to gain one level.
const ExperiencePerLevel = 200

// Progress is the persisted progression document of one user.
type Progress struct {
	Level              int      `json:"level"`
	Experience         int      `json:"experience"`
	UnlockedPilares    []string `json:"unlockedPilares"`
	UnlockedCategorias []string `json:"unlockedCategorias"`
}

// DefaultProgress is the state of a user who never earned experience.
func DefaultProgress() Progress {
	return Progress{
		UnlockedPilares:    []string{catalog.PilarKey(catalog.DefaultCategory, catalog.PilarVision)},
		UnlockedCategorias: []string{catalog.DefaultCategory},
	}
}

// Clone returns a deep copy.
func (p Progress) Clone() Progress {
	p.UnlockedPilares = slices.Clone(p.UnlockedPilares)
	p.UnlockedCategorias = slices.Clone(p.UnlockedCategorias)
	return p
}

// normalize fills absent fields with the defaults of a new user.
func (p Progress) normalize() Progress {
	defaults := DefaultProgress()
	if p.Level < 0 {
		p.Level = 0
	}
	if p.Experience < 0 {
		p.Experience = 0
	}
	if len(p.UnlockedPilares) == 0 {
		p.UnlockedPilares = defaults.UnlockedPilares
	}
	if len(p.UnlockedCategorias) == 0 {
		p.UnlockedCategorias = defaults.UnlockedCategorias
	}
	return p
}

// addExperience applies the rollover loop and returns the number of levels gained.
func (p *Progress) addExperience(amount int) int {
	p.Experience += amount
	levelUps := 0
	for p.Experience >= ExperiencePerLevel {
		p.Experience -= ExperiencePerLevel
		p.Level++
		levelUps++
		p.unlockCategoryForLevel()
	}
	return levelUps
}

func (p *Progress) unlockCategoryForLevel() {
	category, ok := catalog.CategoryAt(p.Level)
	if !ok || slices.Contains(p.UnlockedCategorias, category) {
		return
	}
	p.UnlockedCategorias = append(p.UnlockedCategorias, category)
	p.unlockPilar(category, catalog.PilarVision)
}

func (p *Progress) unlockPilar(category, pilar string) bool {
	key := catalog.PilarKey(category, pilar)
	if slices.Contains(p.UnlockedPilares, key) {
		return false
	}
	p.UnlockedPilares = append(p.UnlockedPilares, key)
	return true
}

func (p Progress) isPilarUnlocked(category, pilar string) bool {
	return slices.Contains(p.UnlockedPilares, catalog.PilarKey(category, pilar))
}
