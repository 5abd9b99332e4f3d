// Package json provides the persisted wire format for merged turn records
// and a file-backed sink that appends one record per line.
package json

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/relay"
)

// RecordDTO is the v1 wire format for one merged turn record.
type RecordDTO struct {
	Version   int        `json:"version"`
	SessionID string     `json:"session_id"`
	Role      string     `json:"role"`
	Content   []blockDTO `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
}

// blockDTO is the JSON representation of a ContentBlock with a type
// discriminator.
type blockDTO struct {
	Type    string           `json:"type"`
	Text    *string          `json:"text,omitempty"`
	Format  *string          `json:"format,omitempty"`
	Data    *string          `json:"data,omitempty"`
	ID      *string          `json:"id,omitempty"`
	Name    *string          `json:"name,omitempty"`
	Input   *json.RawMessage `json:"input,omitempty"`
	Status  *string          `json:"status,omitempty"`
	Content *json.RawMessage `json:"content,omitempty"`
	Raw     *json.RawMessage `json:"raw,omitempty"`
}

// MarshalRecord serializes one merged record.
func MarshalRecord(sessionID string, role relay.Role, content []relay.ContentBlock, createdAt time.Time) ([]byte, error) {
	dtos := make([]blockDTO, len(content))
	for i, b := range content {
		dto, err := marshalBlock(b)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		dtos[i] = dto
	}
	return json.Marshal(RecordDTO{
		Version:   1,
		SessionID: sessionID,
		Role:      string(role),
		Content:   dtos,
		CreatedAt: createdAt,
	})
}

// UnmarshalRecord deserializes one merged record.
func UnmarshalRecord(data []byte) (string, relay.Role, []relay.ContentBlock, error) {
	var dto RecordDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return "", "", nil, fmt.Errorf("unmarshal record: %w", err)
	}
	if dto.Version != 1 {
		return "", "", nil, fmt.Errorf("unsupported record version: %d", dto.Version)
	}
	blocks := make([]relay.ContentBlock, len(dto.Content))
	for i, b := range dto.Content {
		block, err := unmarshalBlock(b)
		if err != nil {
			return "", "", nil, fmt.Errorf("content block %d: %w", i, err)
		}
		blocks[i] = block
	}
	return dto.SessionID, relay.Role(dto.Role), blocks, nil
}

// MarshalBlocks serializes content blocks to their tagged JSON form.
func MarshalBlocks(blocks []relay.ContentBlock) ([]byte, error) {
	dtos := make([]blockDTO, len(blocks))
	for i, b := range blocks {
		dto, err := marshalBlock(b)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		dtos[i] = dto
	}
	return json.Marshal(dtos)
}

// UnmarshalBlocks deserializes content blocks from their tagged JSON form.
func UnmarshalBlocks(data []byte) ([]relay.ContentBlock, error) {
	var dtos []blockDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, fmt.Errorf("unmarshal blocks: %w", err)
	}
	blocks := make([]relay.ContentBlock, len(dtos))
	for i, dto := range dtos {
		block, err := unmarshalBlock(dto)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		blocks[i] = block
	}
	return blocks, nil
}

func marshalBlock(b relay.ContentBlock) (blockDTO, error) {
	switch v := b.(type) {
	case relay.TextBlock:
		return blockDTO{Type: "text", Text: &v.Text}, nil
	case relay.ImageBlock:
		encoded := base64.StdEncoding.EncodeToString(v.Data)
		return blockDTO{Type: "image", Format: &v.Format, Data: &encoded}, nil
	case relay.ToolCallBlock:
		input := v.Input
		return blockDTO{Type: "tool_call", ID: &v.ID, Name: &v.Name, Input: &input}, nil
	case relay.ToolResultBlock:
		content := v.Content
		return blockDTO{Type: "tool_result", ID: &v.ID, Status: &v.Status, Content: &content}, nil
	case relay.UnknownBlock:
		raw := v.Raw
		return blockDTO{Type: "unknown", Raw: &raw}, nil
	default:
		return blockDTO{}, fmt.Errorf("unknown content block type: %T", b)
	}
}

func unmarshalBlock(dto blockDTO) (relay.ContentBlock, error) {
	switch dto.Type {
	case "text":
		var text string
		if dto.Text != nil {
			text = *dto.Text
		}
		return relay.TextBlock{Text: text}, nil
	case "image":
		var format string
		if dto.Format != nil {
			format = *dto.Format
		}
		var data []byte
		if dto.Data != nil {
			decoded, err := base64.StdEncoding.DecodeString(*dto.Data)
			if err != nil {
				return nil, fmt.Errorf("decode image data: %w", err)
			}
			data = decoded
		}
		return relay.ImageBlock{Format: format, Data: data}, nil
	case "tool_call":
		block := relay.ToolCallBlock{}
		if dto.ID != nil {
			block.ID = *dto.ID
		}
		if dto.Name != nil {
			block.Name = *dto.Name
		}
		if dto.Input != nil {
			block.Input = *dto.Input
		}
		return block, nil
	case "tool_result":
		block := relay.ToolResultBlock{}
		if dto.ID != nil {
			block.ID = *dto.ID
		}
		if dto.Status != nil {
			block.Status = *dto.Status
		}
		if dto.Content != nil {
			block.Content = *dto.Content
		}
		return block, nil
	case "unknown":
		block := relay.UnknownBlock{}
		if dto.Raw != nil {
			block.Raw = *dto.Raw
		}
		return block, nil
	default:
		return nil, fmt.Errorf("unknown content block type: %q", dto.Type)
	}
}
