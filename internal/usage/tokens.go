package usage

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tiktoken-go/tokenizer"
)

var codecCache sync.Map

// codecFor returns a cached tokenizer for model. Non-OpenAI models use the
// o200k encoding as an approximation.
func codecFor(model string) (tokenizer.Codec, error) {
	if cached, ok := codecCache.Load(model); ok {
		return cached.(tokenizer.Codec), nil
	}

	var enc tokenizer.Codec
	var err error
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "gpt-4o"):
		enc, err = tokenizer.ForModel(tokenizer.GPT4o)
	case strings.HasPrefix(m, "gpt-4"):
		enc, err = tokenizer.ForModel(tokenizer.GPT4)
	case strings.HasPrefix(m, "gpt-3.5"):
		enc, err = tokenizer.ForModel(tokenizer.GPT35Turbo)
	default:
		enc, err = tokenizer.Get(tokenizer.O200kBase)
	}
	if err != nil {
		return nil, err
	}
	actual, _ := codecCache.LoadOrStore(model, enc)
	return actual.(tokenizer.Codec), nil
}

// CountText returns the token count of text under model's encoding. When no
// tokenizer is available it falls back to four characters per token.
func CountText(model, text string) int64 {
	if text == "" {
		return 0
	}
	enc, err := codecFor(model)
	if err == nil {
		if ids, _, errEncode := enc.Encode(text); errEncode == nil {
			return int64(len(ids))
		}
	}
	n := int64(len(text) / 4)
	if n == 0 {
		n = 1
	}
	return n
}

// CountMessages counts the text of a chat history in either OpenAI
// (content) or Gemini (parts) form. Each message adds a small framing
// overhead the way OpenAI bills it.
func CountMessages(model string, messages []json.RawMessage) int64 {
	const perMessage = 3
	var total int64
	for _, raw := range messages {
		msg := gjson.ParseBytes(raw)
		total += perMessage
		total += CountText(model, msg.Get("role").String())
		content := msg.Get("content")
		if content.Type == gjson.String {
			total += CountText(model, content.String())
		} else {
			content.ForEach(func(_, part gjson.Result) bool {
				total += CountText(model, part.Get("text").String())
				return true
			})
		}
		msg.Get("parts").ForEach(func(_, part gjson.Result) bool {
			total += CountText(model, part.Get("text").String())
			return true
		})
	}
	if total > 0 {
		total += 3
	}
	return total
}

// Record summarizes one completed request.
type Record struct {
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
	// Images is the number of generated images.
	Images int
	Cost   float64
}

// EstimateChatTokens builds a record for a streamed chat completion whose
// output tokens were counted chunk by chunk while relaying it.
func EstimateChatTokens(provider, model string, messages []json.RawMessage, outputTokens int64) Record {
	r := Record{
		Provider:     provider,
		Model:        model,
		InputTokens:  CountMessages(model, messages),
		OutputTokens: outputTokens,
	}
	r.Cost, _ = EstimateModelCost(model, r.InputTokens, r.OutputTokens)
	return r
}

// EstimateImage builds a record for one generated image.
func EstimateImage(provider, model, prompt string) Record {
	return Record{
		Provider:    provider,
		Model:       model,
		InputTokens: CountText(model, prompt),
		Images:      1,
		Cost:        EstimateImageCost(model),
	}
}
