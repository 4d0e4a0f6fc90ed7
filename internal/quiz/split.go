package quiz

import "strings"

// SplitQuestion separates generated text into a question and its answer at
// the first occurrence of delim. Both halves are trimmed; ok is false when
// the delimiter is missing or either half is empty.
func SplitQuestion(text, delim string) (question, answer string, ok bool) {
	if delim == "" {
		return "", "", false
	}
	q, a, found := strings.Cut(text, delim)
	if !found {
		return strings.TrimSpace(text), "", false
	}
	question = strings.TrimSpace(q)
	answer = strings.TrimSpace(a)
	return question, answer, question != "" && answer != ""
}
