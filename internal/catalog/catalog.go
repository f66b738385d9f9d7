// Package catalog holds the fixed taxonomy of life categories and pilars.
package catalog

import "fmt"

// Pilar names in unlock order.
const (
	PilarVision      = "Vision"
	PilarProposito   = "Proposito"
	PilarCreencias   = "Creencias"
	PilarEstrategias = "Estrategias"
)

// DefaultCategory is unlocked for every new user.
const DefaultCategory = "Salud"

var pilarOrder = []string{PilarVision, PilarProposito, PilarCreencias, PilarEstrategias}

var categoryOrder = []string{
	"Salud",
	"Personalidad",
	"Intelecto",
	"Carrera",
	"Finanzas",
	"CalidadDeVida",
	"Emocionalidad",
	"Relaciones",
}

var categoryLabels = map[string]string{
	"Salud":         "salud",
	"Personalidad":  "personalidad",
	"Intelecto":     "intelecto",
	"Carrera":       "carrera",
	"Finanzas":      "finanzas",
	"CalidadDeVida": "calidad de vida",
	"Emocionalidad": "emocionalidad",
	"Relaciones":    "relaciones",
}

var pilarExplanations = map[string]string{
	PilarVision:      "Tu Visión se refiere al estado ideal que te gustaría alcanzar en esta categoría importante. Pregúntate: ¿Cómo quieres que se sienta este área de tu vida? ¿Cómo te gustaría que luciera? ¿Qué te gustaría estar haciendo de manera consistente? Describe claramente tu Visión ideal.",
	PilarProposito:   "Tu Propósito se refiere a las razones convincentes detrás de lo que quieres en esta categoría. ¿Qué te energiza? ¿Qué te empodera para actuar? ¿Qué te motiva a alcanzar tu Visión? Describe POR QUÉ quieres sacar el máximo provecho de esta área de tu vida.",
	PilarCreencias:   "Tus creencias se refieren a las creencias fundamentales que tienes sobre esta categoría. ¿En qué crees? ¿Qué creencias profundas están moldeando tu vida? ¿Tus creencias son empoderadoras? ¿Te mueven a un nivel profundo o te están frenando?",
	PilarEstrategias: "Tu Estrategia se refiere a las acciones específicas que te llevarán de donde estás ahora a donde quieres estar. ¿Cómo harás realidad tu visión? Pregúntate qué tipo de hábitos positivos, actitudes y pasos de acción puedes implementar.",
}

var recognitionTemplates = map[string][]string{
	PilarVision: {
		"¡Gran trabajo en tu visión de %s!",
		"¡Sigue así, tu visión de %s es inspiradora!",
		"¡Tu visión de %s te lleva hacia un mejor bienestar!",
		"¡Cada día, tu visión de %s se hace más clara!",
		"¡Tu visión de %s está transformando tu vida!",
	},
	PilarProposito: {
		"¡Tu propósito de %s es admirable!",
		"¡Estás haciendo un gran trabajo con tu propósito de %s!",
		"¡Tu propósito de %s da sentido a tus esfuerzos diarios!",
		"¡Sigue firme en tu propósito de %s, estás en el camino correcto!",
		"¡Tu propósito de %s inspira a otros!",
	},
	PilarCreencias: {
		"¡Tus creencias de %s son fuertes!",
		"¡Sigue fortaleciendo tus creencias de %s!",
		"¡Tus creencias de %s son tu fortaleza interna!",
		"¡Confía en tus creencias de %s para guiarte!",
		"¡Tus creencias de %s son la base de tu bienestar!",
	},
	PilarEstrategias: {
		"¡Tus estrategias de %s son efectivas!",
		"¡Sigue implementando tus estrategias de %s!",
		"¡Tus estrategias de %s están dando resultados visibles!",
		"¡Mantén el curso con tus estrategias de %s!",
		"¡Cada estrategia de %s que aplicas te acerca más a tu objetivo!",
	},
}

// Pilars returns the pilar names in unlock order.
func Pilars() []string {
	return append([]string(nil), pilarOrder...)
}

// Categories returns the category names in global unlock order.
func Categories() []string {
	return append([]string(nil), categoryOrder...)
}

// CategoryAt returns the category unlocked at the given level.
func CategoryAt(level int) (string, bool) {
	if level < 0 || level >= len(categoryOrder) {
		return "", false
	}
	return categoryOrder[level], true
}

// IsPilar reports whether name is one of the fixed pilars.
func IsPilar(name string) bool {
	return pilarIndex(name) >= 0
}

// IsCategory reports whether name is one of the catalog categories.
func IsCategory(name string) bool {
	_, ok := categoryLabels[name]
	return ok
}

// NextPilar returns the pilar following name. It reports false for the last
// pilar and for names outside the catalog.
func NextPilar(name string) (string, bool) {
	index := pilarIndex(name)
	if index < 0 || index+1 >= len(pilarOrder) {
		return "", false
	}
	return pilarOrder[index+1], true
}

// PilarKey builds the "{category}-{pilar}" unlock key.
func PilarKey(category, pilar string) string {
	return category + "-" + pilar
}

// PilarExplanation returns the guidance text shown for a pilar.
func PilarExplanation(pilar string) string {
	return pilarExplanations[pilar]
}

// Explanations returns a copy of every pilar explanation.
func Explanations() map[string]string {
	copied := make(map[string]string, len(pilarExplanations))
	for key, value := range pilarExplanations {
		copied[key] = value
	}
	return copied
}

// RecognitionMessage picks the encouragement shown after the n-th sentence of
// a pilar. Unknown pilars yield an empty message.
func RecognitionMessage(category, pilar string, n int) string {
	templates := recognitionTemplates[pilar]
	if len(templates) == 0 {
		return ""
	}
	label, ok := categoryLabels[category]
	if !ok {
		label = category
	}
	if n < 0 {
		n = -n
	}
	return fmt.Sprintf(templates[n%len(templates)], label)
}

func pilarIndex(name string) int {
	for index, pilar := range pilarOrder {
		if pilar == name {
			return index
		}
	}
	return -1
}
