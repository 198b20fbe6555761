package translate

import (
	"encoding/json"
	"strings"
)

type chunk struct {
	Choices []struct {
		Delta delta `json:"delta"`
	} `json:"choices"`
}

type delta struct {
	Content          string          `json:"content"`
	ReasoningDetails json.RawMessage `json:"reasoning_details"`
	ReasoningContent string          `json:"reasoning_content"`
	Reasoning        json.RawMessage `json:"reasoning"`
}

// parseChunk decodes one SSE data payload into its content and reasoning
// fragments.
func parseChunk(p Provider, data []byte) (content, reasoning string, err error) {
	var c chunk
	if err := json.Unmarshal(data, &c); err != nil {
		return "", "", err
	}
	if len(c.Choices) == 0 {
		return "", "", nil
	}
	d := c.Choices[0].Delta
	if p == ProviderOpenAI {
		return d.Content, d.ReasoningContent, nil
	}
	return d.Content, d.reasoningText(), nil
}

// reasoningText takes the first present of reasoning_details,
// reasoning_content and reasoning. Each may be a string or an array of
// {content} objects.
func (d delta) reasoningText() string {
	if present(d.ReasoningDetails) {
		return flatten(d.ReasoningDetails)
	}
	if d.ReasoningContent != "" {
		return d.ReasoningContent
	}
	if present(d.Reasoning) {
		return flatten(d.Reasoning)
	}
	return ""
}

func present(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null" && s != `""` && s != "false"
}

func flatten(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Content)
	}
	return b.String()
}
