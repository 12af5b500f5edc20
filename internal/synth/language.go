package synth

import (
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/intent"
)

type Language string

const (
	Spanish Language = "es"
	English Language = "en"
)

var spanishMarkers = map[string]struct{}{
	"el": {}, "la": {}, "los": {}, "las": {}, "de": {}, "del": {}, "que": {}, "qué": {}, "en": {},
	"y": {}, "un": {}, "una": {}, "hay": {}, "cuántos": {}, "cuántas": {}, "cuál": {}, "dónde": {},
	"muéstrame": {}, "dame": {}, "por": {}, "para": {}, "con": {}, "es": {}, "son": {}, "hola": {},
	"mesas": {}, "productos": {}, "almacén": {}, "ubicación": {}, "existencias": {}, "tengo": {},
}

var englishMarkers = map[string]struct{}{
	"the": {}, "of": {}, "and": {}, "in": {}, "is": {}, "are": {}, "what": {}, "which": {}, "where": {},
	"how": {}, "many": {}, "show": {}, "me": {}, "list": {}, "give": {}, "for": {}, "with": {},
	"do": {}, "we": {}, "have": {}, "hello": {}, "hi": {}, "products": {}, "warehouse": {},
}

// DetectLanguage guesses between Spanish and English from stop words and
// Spanish-only punctuation. Ties go to Spanish.
func DetectLanguage(text string) Language {
	spanish, english := 0, 0
	if strings.ContainsAny(text, "¿¡ñÑáéíóúÁÉÍÓÚ") {
		spanish += 2
	}
	for _, token := range intent.Tokenize(text) {
		if _, ok := spanishMarkers[token]; ok {
			spanish++
		}
		if _, ok := englishMarkers[token]; ok {
			english++
		}
	}
	if english > spanish {
		return English
	}
	return Spanish
}

// MessageKey names an operator-facing message that does not come from the
// model.
type MessageKey int

const (
	MessageNoData MessageKey = iota
	MessageGenerationFailed
	MessageRejected
	MessageExecutionFailed
	MessageSynthesisFailed
	MessageInternal
	MessageTruncated
)

var localized = map[Language]map[MessageKey]string{
	Spanish: {
		MessageNoData:           "No se encontraron datos para tu consulta.",
		MessageGenerationFailed: "No pude generar una consulta para tu pregunta. Inténtalo de nuevo más tarde.",
		MessageRejected:         "La consulta generada fue rechazada por seguridad: %s",
		MessageExecutionFailed:  "La consulta no se pudo ejecutar en la base de datos (%s).",
		MessageSynthesisFailed:  "No pude redactar la respuesta. Estos son los datos obtenidos:",
		MessageInternal:         "Ocurrió un error interno al procesar tu pregunta.",
		MessageTruncated:        "(Se muestran solo las primeras %d filas.)",
	},
	English: {
		MessageNoData:           "No data was found for your question.",
		MessageGenerationFailed: "I could not generate a query for your question. Please try again later.",
		MessageRejected:         "The generated query was rejected for safety: %s",
		MessageExecutionFailed:  "The query could not be executed against the database (%s).",
		MessageSynthesisFailed:  "I could not write up the answer. Here is the data that was found:",
		MessageInternal:         "An internal error occurred while handling your question.",
		MessageTruncated:        "(Only the first %d rows are shown.)",
	},
}

// Message returns the localized text for key, formatted with args when the
// text has verbs.
func Message(lang Language, key MessageKey, args ...any) string {
	messages, ok := localized[lang]
	if !ok {
		messages = localized[Spanish]
	}
	text := messages[key]
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}
