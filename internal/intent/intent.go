// Package intent decides whether a question asks for data or is conversation.
package intent

import (
	"strings"
	"unicode"
)

type Label string

const (
	DataQuery      Label = "DATA_QUERY"
	Conversational Label = "CONVERSATIONAL"
)

func (l Label) String() string {
	return string(l)
}

// DefaultKeywords mixes the Spanish and English vocabulary operators use when
// asking about inventory, plus raw SQL words.
var DefaultKeywords = []string{
	"stock", "existencias", "inventario", "inventory",
	"producto", "productos", "product", "products",
	"listar", "lista", "list", "mostrar", "muestra", "muéstrame", "muestrame", "show",
	"cuántos", "cuantos", "cuántas", "cuantas", "cantidad", "quantity",
	"ubicación", "ubicacion", "ubicaciones", "location", "locations",
	"almacén", "almacen", "almacenes", "warehouse", "warehouses",
	"tabla", "table", "select", "join", "count",
}

// Classifier labels questions by whole-token keyword match. It is safe for
// concurrent use; the keyword set is fixed at construction.
type Classifier struct {
	keywords map[string]struct{}
}

func NewClassifier(extra ...string) *Classifier {
	keywords := make(map[string]struct{}, len(DefaultKeywords)+len(extra))
	for _, word := range DefaultKeywords {
		keywords[word] = struct{}{}
	}
	for _, word := range extra {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" {
			keywords[word] = struct{}{}
		}
	}
	return &Classifier{keywords: keywords}
}

// Classify returns DataQuery when any token of text is a keyword. Anything
// else, including empty input, is Conversational.
func (c *Classifier) Classify(text string) Label {
	for _, token := range Tokenize(text) {
		if _, ok := c.keywords[token]; ok {
			return DataQuery
		}
	}
	return Conversational
}

// Tokenize lower-cases text and splits it on every rune that is neither a
// letter nor a digit, so accented words stay whole.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
