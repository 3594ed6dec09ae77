package proxy

import "encoding/json"

// ChatRequest is an OpenAI-compatible chat completion request. Extra holds
// provider-specific top-level fields such as temperature or response_format.
type ChatRequest struct {
	Model    string
	Messages json.RawMessage
	Extra    map[string]json.RawMessage
}

// MarshalJSON flattens Extra next to model and messages. Model and Messages
// win over Extra entries of the same name.
func (r ChatRequest) MarshalJSON() ([]byte, error) {
	body := make(map[string]json.RawMessage, len(r.Extra)+2)
	for k, v := range r.Extra {
		body[k] = v
	}
	model, err := json.Marshal(r.Model)
	if err != nil {
		return nil, err
	}
	body["model"] = model
	if r.Messages != nil {
		body["messages"] = r.Messages
	}
	return json.Marshal(body)
}

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the part of a completion response the client reads.
type ChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}
