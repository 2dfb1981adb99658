package workersai

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoText is returned when a model result carries no recognizable text.
var ErrNoText = errors.New("model result contains no text")

// ExtractText pulls generated text out of the shapes text models return:
// a bare string, an object with response/content/text, an array of
// messages, or an OpenAI-style choices list.
func ExtractText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrNoText
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return nonEmpty(s)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", err
		}
		return fromMessages(items)
	case '{':
		return fromObject(raw)
	default:
		return "", ErrNoText
	}
}

type textObject struct {
	Response json.RawMessage `json:"response"`
	Content  json.RawMessage `json:"content"`
	Text     json.RawMessage `json:"text"`
	Message  json.RawMessage `json:"message"`
	Choices  []struct {
		Message json.RawMessage `json:"message"`
		Text    json.RawMessage `json:"text"`
	} `json:"choices"`
}

func fromObject(raw json.RawMessage) (string, error) {
	var obj textObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	for _, candidate := range []json.RawMessage{obj.Response, obj.Content, obj.Text, obj.Message} {
		if text, err := ExtractText(candidate); err == nil {
			return text, nil
		}
	}
	for _, choice := range obj.Choices {
		if text, err := ExtractText(choice.Message); err == nil {
			return text, nil
		}
		if text, err := ExtractText(choice.Text); err == nil {
			return text, nil
		}
	}
	return "", ErrNoText
}

// fromMessages prefers the last assistant turn, then the last turn with any text.
func fromMessages(items []json.RawMessage) (string, error) {
	fallback := ""
	for i := len(items) - 1; i >= 0; i-- {
		var msg struct {
			Role string `json:"role"`
		}
		_ = json.Unmarshal(items[i], &msg)
		text, err := ExtractText(items[i])
		if err != nil {
			continue
		}
		if msg.Role == "" || strings.EqualFold(msg.Role, "assistant") {
			return text, nil
		}
		if fallback == "" {
			fallback = text
		}
	}
	return nonEmpty(fallback)
}

func nonEmpty(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", ErrNoText
	}
	return s, nil
}
