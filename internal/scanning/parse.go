package scanning

import "strings"

// transcriptionPrompt is the shared prompt for the vision-model engines.
// The models only read text; field parsing stays with the rule-based parser.
const transcriptionPrompt = `You are an OCR engine. Transcribe all text in this receipt image exactly as printed.

Rules:
- Keep the original line breaks and reading order, top to bottom
- Copy numbers, dates, currency symbols and punctuation character for character
- Do not summarize, translate, correct or explain anything
- Do not add any text before or after the transcription
- Do not use markdown code blocks`

// cleanTranscript strips the markdown fence a model may wrap its answer in
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	// Drop the opening fence line, which may carry a language tag
	if i := strings.Index(text, "\n"); i >= 0 {
		text = text[i+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
