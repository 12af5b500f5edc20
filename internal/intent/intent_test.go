package intent

import "testing"

func TestClassify(t *testing.T) {
	c := NewClassifier()
	tests := []struct {
		text string
		want Label
	}{
		{text: "muéstrame el stock de las mesas", want: DataQuery},
		{text: "¿Cuántos productos hay en el almacén?", want: DataQuery},
		{text: "SELECT name FROM product_template", want: DataQuery},
		{text: "list products in location WH/Stock", want: DataQuery},
		{text: "hola, ¿qué tal?", want: Conversational},
		{text: "tell me a joke", want: Conversational},
		{text: "", want: Conversational},
		// keywords embedded in other words must not match
		{text: "selection of joinery", want: Conversational},
		{text: "restock", want: Conversational},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.text); got != tt.want {
			t.Fatalf("Classify(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := NewClassifier()
	inputs := []string{"muéstrame el stock", "buenos días", "join the tables", "¿?"}
	for _, in := range inputs {
		first := c.Classify(in)
		for i := 0; i < 10; i++ {
			if got := c.Classify(in); got != first {
				t.Fatalf("Classify(%q) changed from %s to %s", in, first, got)
			}
		}
		if got := NewClassifier().Classify(in); got != first {
			t.Fatalf("Classify(%q) differs across classifiers: %s vs %s", in, first, got)
		}
	}
}

func TestClassifyExtraKeywords(t *testing.T) {
	c := NewClassifier(" Pedidos ", "")
	if got := c.Classify("dame los pedidos de hoy"); got != DataQuery {
		t.Fatalf("Classify() = %s, want %s", got, DataQuery)
	}
	if got := NewClassifier().Classify("dame los pedidos de hoy"); got != Conversational {
		t.Fatalf("Classify() without extra keyword = %s", got)
	}
}

func TestTokenizeKeepsAccentedWords(t *testing.T) {
	got := Tokenize("¡Muéstrame UBICACIÓN/almacén-1!")
	want := []string{"muéstrame", "ubicación", "almacén", "1"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize() = %#v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
