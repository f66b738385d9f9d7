package declarations

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dividis/backend/internal/docstore"
)

// ReactionKind is one of the three reactions a user can leave.
type ReactionKind string

const (
	ReactionMeEncanta     ReactionKind = "meEncanta"
	ReactionEstaOk        ReactionKind = "estaOk"
	ReactionMejorCambiala ReactionKind = "mejorCambiala"
)

var errUnknownReaction = errors.New("unknown reaction kind")

// ParseReactionKind validates a wire value.
func ParseReactionKind(value string) (ReactionKind, error) {
	kind := ReactionKind(strings.TrimSpace(value))
	switch kind {
	case ReactionMeEncanta, ReactionEstaOk, ReactionMejorCambiala:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownReaction, value)
	}
}

// Reactions counts reactions per kind.
type Reactions struct {
	MeEncanta     int `json:"meEncanta"`
	EstaOk        int `json:"estaOk"`
	MejorCambiala int `json:"mejorCambiala"`
}

// Count returns the counter of kind.
func (r Reactions) Count(kind ReactionKind) int {
	switch kind {
	case ReactionMeEncanta:
		return r.MeEncanta
	case ReactionEstaOk:
		return r.EstaOk
	case ReactionMejorCambiala:
		return r.MejorCambiala
	default:
		return 0
	}
}

// Total sums every counter.
func (r Reactions) Total() int {
	return r.MeEncanta + r.EstaOk + r.MejorCambiala
}

func (r *Reactions) add(kind ReactionKind, delta int) {
	switch kind {
	case ReactionMeEncanta:
		r.MeEncanta = max(0, r.MeEncanta+delta)
	case ReactionEstaOk:
		r.EstaOk = max(0, r.EstaOk+delta)
	case ReactionMejorCambiala:
		r.MejorCambiala = max(0, r.MejorCambiala+delta)
	}
}

// Declaration is a public statement stored inside its category/pilar partition.
type Declaration struct {
	ID                   string                  `json:"id"`
	Texto                string                  `json:"texto"`
	Categoria            string                  `json:"categoria"`
	Pilar                string                  `json:"pilar"`
	CreadorID            string                  `json:"creadorId"`
	Compartidos          int                     `json:"compartidos"`
	Reacciones           Reactions               `json:"reacciones"`
	UsuariosReaccionaron []string                `json:"usuariosReaccionaron"`
	UsuariosReaccionTipo map[string]ReactionKind `json:"usuariosReaccionTipo"`
	UsuariosCompartieron []string                `json:"usuariosCompartieron"`
	EsPublica            bool                    `json:"esPublica"`
	EsCompartida         bool                    `json:"esCompartida,omitempty"`
}

// Draft is the caller-supplied part of a new declaration.
type Draft struct {
	Texto     string `json:"texto"`
	Categoria string `json:"categoria"`
	Pilar     string `json:"pilar"`
}

// NewDeclarationID builds "{categoria}-{pilar}-{unixMillis}".
func NewDeclarationID(categoria, pilar string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d", categoria, pilar, at.UnixMilli())
}

// Clone returns a deep copy with non-nil collections.
func (d Declaration) Clone() Declaration {
	d.UsuariosReaccionaron = cloneStrings(d.UsuariosReaccionaron)
	d.UsuariosCompartieron = cloneStrings(d.UsuariosCompartieron)
	if d.UsuariosReaccionTipo == nil {
		d.UsuariosReaccionTipo = map[string]ReactionKind{}
	} else {
		d.UsuariosReaccionTipo = maps.Clone(d.UsuariosReaccionTipo)
	}
	return d
}

// Partition addresses the document holding the declaration.
func (d Declaration) Partition() docstore.Ref {
	return docstore.PublicPartition(d.Categoria, d.Pilar)
}

// ReactionOf returns the reaction of userID, if any.
func (d Declaration) ReactionOf(userID string) (ReactionKind, bool) {
	kind, ok := d.UsuariosReaccionTipo[userID]
	return kind, ok
}

// SharedBy reports whether userID shared the declaration.
func (d Declaration) SharedBy(userID string) bool {
	return slices.Contains(d.UsuariosCompartieron, userID)
}

// applyReaction toggles, switches or adds the reaction of userID.
func (d *Declaration) applyReaction(userID string, kind ReactionKind) {
	if d.UsuariosReaccionTipo == nil {
		d.UsuariosReaccionTipo = map[string]ReactionKind{}
	}
	current, reacted := d.UsuariosReaccionTipo[userID]
	if reacted && current == kind {
		d.Reacciones.add(kind, -1)
		delete(d.UsuariosReaccionTipo, userID)
		d.UsuariosReaccionaron = slices.DeleteFunc(d.UsuariosReaccionaron, func(id string) bool { return id == userID })
		return
	}
	if reacted {
		d.Reacciones.add(current, -1)
	} else if !slices.Contains(d.UsuariosReaccionaron, userID) {
		d.UsuariosReaccionaron = append(d.UsuariosReaccionaron, userID)
	}
	d.Reacciones.add(kind, 1)
	d.UsuariosReaccionTipo[userID] = kind
}

func (d *Declaration) applyShare(userID string) {
	d.Compartidos++
	d.UsuariosCompartieron = append(d.UsuariosCompartieron, userID)
}

func (d *Declaration) applyUnshare(userID string) {
	d.Compartidos = max(0, d.Compartidos-1)
	d.UsuariosCompartieron = slices.DeleteFunc(d.UsuariosCompartieron, func(id string) bool { return id == userID })
}

func (d Declaration) normalized() Declaration {
	d = d.Clone()
	d.EsPublica = true
	d.EsCompartida = false
	return d
}

func cloneStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return slices.Clone(values)
}
