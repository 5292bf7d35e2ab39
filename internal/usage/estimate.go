// Package usage provides stateless token-count heuristics for prompt and
// completion text. No external tokenizer is involved: ASCII characters are
// bundled at four per token (rounded up) and every non-ASCII character
// counts as one token on its own.
package usage

import (
	"regexp"
	"strings"
)

// Counts holds the usage counters attached to a single call record.
type Counts struct {
	TotalTokens     int `json:"totalTokens"`
	InputTokens     int `json:"inputTokens"`
	OutputTokens    int `json:"outputTokens"`
	ReasoningTokens int `json:"reasoningTokens"`
	CachedTokens    int `json:"cachedTokens"`
}

// EstimateTokens returns the heuristic token count of a text.
// Empty text counts as zero.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	ascii, nonASCII := 0, 0
	for _, r := range text {
		if r <= 0x7F {
			ascii++
		} else {
			nonASCII++
		}
	}
	return (ascii+3)/4 + nonASCII
}

// PromptEstimate is the breakdown of the prompt side of a call.
// Image tokens are always zero pending real image-cost accounting.
type PromptEstimate struct {
	TextTokens   int `json:"textTokens"`
	ImageTokens  int `json:"imageTokens"`
	PromptTokens int `json:"promptTokens"`
}

// EstimatePrompt estimates the prompt token count from the non-empty text
// parts of a message list.
func EstimatePrompt(parts []string) PromptEstimate {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}

	textTokens := EstimateTokens(strings.Join(nonEmpty, "\n"))
	return PromptEstimate{
		TextTokens:   textTokens,
		ImageTokens:  0,
		PromptTokens: textTokens,
	}
}

// reasoningPattern matches delimited reasoning spans: case-insensitive,
// non-greedy, spanning newlines.
var reasoningPattern = regexp.MustCompile(`(?is)<think>(.*?)</think>`)

// SplitReasoningSegments extracts all content between paired reasoning
// delimiters, concatenated with newline separators in order of appearance.
// The returned output is the input with the tagged spans removed. Without
// delimiters the input passes through unchanged.
func SplitReasoningSegments(text string) (reasoning, output string) {
	if text == "" {
		return "", ""
	}

	matches := reasoningPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", text
	}

	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m[1])
	}
	return strings.Join(parts, "\n"), reasoningPattern.ReplaceAllString(text, "")
}

// BuildChatUsage assembles the usage counters for a completed chat call.
// Reasoning spans in the completion are counted into the output total and
// also reported separately. No cache signal is available, so cached tokens
// are always zero.
func BuildChatUsage(promptTextTokens, promptImageTokens int, completionText string) Counts {
	reasoning, output := SplitReasoningSegments(completionText)

	reasoningTokens := EstimateTokens(reasoning)
	outputTokens := EstimateTokens(output) + reasoningTokens
	inputTokens := promptTextTokens + promptImageTokens

	return Counts{
		TotalTokens:     inputTokens + outputTokens,
		InputTokens:     inputTokens,
		OutputTokens:    outputTokens,
		ReasoningTokens: reasoningTokens,
		CachedTokens:    0,
	}
}
