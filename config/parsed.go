package config

import (
	"fmt"
	"strings"
)

const instruction = "Translate the following text from %s to %s. " +
	"Provide only one translation per entry. " +
	"Do not include alternative translations or explanations:"

// GetInstruction builds the fixed translation instruction for a language pair.
// Empty languages fall back to the configured defaults.
func GetInstruction(sourceLanguage, targetLanguage string) string {
	if sourceLanguage == "" {
		sourceLanguage, _ = ParseLanguage(TheConfig.SourceLanguage)
	}
	if targetLanguage == "" {
		targetLanguage, _ = ParseLanguage(TheConfig.TargetLanguage)
	}
	return fmt.Sprintf(instruction, sourceLanguage, targetLanguage)
}

const gemmaPrompt = "<bos><start_of_turn>user\n%s<end_of_turn>\n<start_of_turn>model\n"

// GemmaWrap wraps a user message in the Gemma chat template expected by
// KoboldCpp running a Gemma model.
func GemmaWrap(userMessage string) string {
	return fmt.Sprintf(gemmaPrompt, userMessage)
}

// ParseLanguage splits a "Name;code" language setting. A bare name yields an
// empty code.
func ParseLanguage(s string) (string, string) {
	ss := strings.SplitN(s, ";", 2)
	if len(ss) == 1 {
		return strings.TrimSpace(ss[0]), ""
	}
	return strings.TrimSpace(ss[0]), strings.TrimSpace(ss[1])
}
