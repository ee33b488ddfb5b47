package config

import (
	"strings"
	"testing"
)

func TestParseLanguage(t *testing.T) {
	cases := []struct {
		in   string
		name string
		code string
	}{
		{"English;eng", "English", "eng"},
		{"Spanish ; spa", "Spanish", "spa"},
		{"French", "French", ""},
		{"Brazilian Portuguese;pob", "Brazilian Portuguese", "pob"},
	}
	for _, c := range cases {
		name, code := ParseLanguage(c.in)
		if name != c.name || code != c.code {
			t.Errorf("ParseLanguage(%q) = %q, %q, want %q, %q", c.in, name, code, c.name, c.code)
		}
	}
}

func TestGetInstruction(t *testing.T) {
	got := GetInstruction("English", "Spanish")
	if !strings.HasPrefix(got, "Translate the following text from English to Spanish.") {
		t.Errorf("instruction = %q", got)
	}
	if !strings.HasSuffix(got, "explanations:") {
		t.Errorf("instruction = %q", got)
	}

	TheConfig = &Config{SourceLanguage: "German;ger", TargetLanguage: "Italian;ita"}
	got = GetInstruction("", "")
	if !strings.Contains(got, "from German to Italian") {
		t.Errorf("default instruction = %q", got)
	}
}

func TestGemmaWrap(t *testing.T) {
	got := GemmaWrap("hello")
	want := "<bos><start_of_turn>user\nhello<end_of_turn>\n<start_of_turn>model\n"
	if got != want {
		t.Errorf("GemmaWrap = %q, want %q", got, want)
	}
}
