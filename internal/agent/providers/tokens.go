package providers

import "github.com/nexar-labs/nexar/pkg/models"

// EstimateTokens approximates the token count of a text as
// ceil(utf8_bytes / 4). Used when the vendor omits usage numbers.
func EstimateTokens(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// estimatePromptTokens sums the estimate over all prompt messages.
func estimatePromptTokens(messages []models.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

// resolveUsage prefers provider-reported counts and falls back to
// estimates, marking the source accordingly.
func resolveUsage(input, output int, prompt []models.ChatMessage, completion string) models.TokenUsage {
	if input > 0 || output > 0 {
		return models.TokenUsage{
			Input:  input,
			Output: output,
			Total:  input + output,
			Source: "provider",
		}
	}
	in := estimatePromptTokens(prompt)
	out := EstimateTokens(completion)
	return models.TokenUsage{
		Input:  in,
		Output: out,
		Total:  in + out,
		Source: "estimated",
	}
}
