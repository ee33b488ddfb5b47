package translation

import (
	"testing"
)

func TestCleanResponse(t *testing.T) {
	stops := []string{"<end_of_turn>", "<start_of_turn>"}
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "[1] Hola", "[1] Hola"},
		{"surrounding whitespace", "  [1] Hola \n", "[1] Hola"},
		{"trailing stop sequence", "[1] Hola<end_of_turn>", "[1] Hola"},
		{"stop sequence after newline", "[1] Hola\n<end_of_turn>", "[1] Hola"},
		{"both stop sequences", "[1] Hola<start_of_turn><end_of_turn>", "[1] Hola"},
		{"slash alternative", "Hola / Buenas", "Hola\nBuenas"},
		{"slash with uneven spacing", "Hola   /Buenas", "Hola\nBuenas"},
		{"output label", "Output: [1] Hola", "[1] Hola"},
		{"output label on later line", "[1] Hola\nOutput: [2] Adios", "[1] Hola\n[2] Adios"},
		{"mid-line output label survives", "[1] The Output: value", "[1] The Output: value"},
		{"empty", "", ""},
		{"only stop sequence", "<end_of_turn>", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := CleanResponse(c.in, stops)
			if got != c.want {
				t.Errorf("CleanResponse(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestCleanResponseStopOrder(t *testing.T) {
	// Suffixes strip in configured order, one pass each: a suffix exposed by a
	// later strip stays.
	got := CleanResponse("text<end_of_turn><start_of_turn>", []string{"<end_of_turn>", "<start_of_turn>"})
	if got != "text<end_of_turn>" {
		t.Errorf("got %q, want %q", got, "text<end_of_turn>")
	}
}
