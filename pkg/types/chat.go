package types

import "encoding/json"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation. Role is free-form; user and
// assistant are the values the UI sends.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages []Message `json:"messages"`
	Model    string    `json:"model"`
}

type History struct {
	Messages []Message `json:"messages"`
}

type Usage struct {
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

type ChunkType string

const (
	ChunkContent ChunkType = "content"
	ChunkUsage   ChunkType = "usage"
)

// Chunk is one outbound NDJSON record of a chat stream.
type Chunk struct {
	Type    ChunkType
	Content string
	Usage   Usage
}

func ContentChunk(s string) Chunk { return Chunk{Type: ChunkContent, Content: s} }

func UsageChunk(u Usage) Chunk { return Chunk{Type: ChunkUsage, Usage: u} }

func (c Chunk) MarshalJSON() ([]byte, error) {
	if c.Type == ChunkUsage {
		return json.Marshal(struct {
			Type            ChunkType `json:"type"`
			PromptEvalCount int       `json:"prompt_eval_count"`
			EvalCount       int       `json:"eval_count"`
		}{c.Type, c.Usage.PromptEvalCount, c.Usage.EvalCount})
	}
	return json.Marshal(struct {
		Type    ChunkType `json:"type"`
		Content string    `json:"content"`
	}{ChunkContent, c.Content})
}

func (c *Chunk) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type            ChunkType `json:"type"`
		Content         string    `json:"content"`
		PromptEvalCount int       `json:"prompt_eval_count"`
		EvalCount       int       `json:"eval_count"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = Chunk{Type: raw.Type, Content: raw.Content}
	if raw.Type == ChunkUsage {
		c.Usage = Usage{PromptEvalCount: raw.PromptEvalCount, EvalCount: raw.EvalCount}
	}
	return nil
}
