// internal/conversation/store.go
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Store holds the ordered message history for one session and tracks the
// checkpoint active when each message was created. It is owned exclusively
// by its session; queries are serialized per session, so the store takes
// no locks.
type Store struct {
	validate bool

	messages         []ConversationMessage
	lastCheckpointID string

	// pendingToolUse is the oldest unresolved tool invocation id, if any
	pendingToolUse string

	readFiles map[string]struct{}
	readOrder []string
}

// NewStore creates an empty conversation store. With validate set, every
// push enforces tool_use/tool_result pairing.
func NewStore(validate bool) *Store {
	return &Store{
		validate:  validate,
		readFiles: make(map[string]struct{}),
	}
}

// SetCheckpoint records the checkpoint id inherited by messages pushed
// from now on. Call only after a checkpoint has fully completed.
func (s *Store) SetCheckpoint(checkpointID string) {
	s.lastCheckpointID = checkpointID
}

// LastCheckpointID returns the currently inherited checkpoint id
func (s *Store) LastCheckpointID() string {
	return s.lastCheckpointID
}

// PushUser appends a user text message and returns its id
func (s *Store) PushUser(text string) (string, error) {
	return s.push(RoleUser, []ContentBlock{TextBlock(text)})
}

// PushAssistant appends an assistant text message and returns its id
func (s *Store) PushAssistant(text string) (string, error) {
	return s.push(RoleAssistant, []ContentBlock{TextBlock(text)})
}

// PushAssistantBlocks appends an assistant message with explicit content
// blocks (text, thinking, tool_use)
func (s *Store) PushAssistantBlocks(blocks ...ContentBlock) (string, error) {
	return s.push(RoleAssistant, blocks)
}

// PushToolUse appends an assistant tool invocation
func (s *Store) PushToolUse(id, name string, input map[string]any) (string, error) {
	return s.push(RoleAssistant, []ContentBlock{ToolUseBlock(id, name, input)})
}

// PushToolResult appends the result for a prior tool invocation
func (s *Store) PushToolResult(toolUseID, content string, isError bool) (string, error) {
	return s.push(RoleUser, []ContentBlock{ToolResultBlock(toolUseID, content, isError)})
}

// push validates and appends a message, assigning it a fresh id and the
// inherited checkpoint reference
func (s *Store) push(role Role, blocks []ContentBlock) (string, error) {
	if s.validate {
		if err := s.checkIntegrity(blocks); err != nil {
			return "", err
		}
	}
	s.applyPairing(blocks)

	msg := ConversationMessage{
		ID:           uuid.New().String(),
		Role:         role,
		Content:      blocks,
		CreatedAt:    time.Now(),
		CheckpointID: s.lastCheckpointID,
	}
	s.messages = append(s.messages, msg)
	return msg.ID, nil
}

// checkIntegrity enforces that an open tool invocation is resolved by the
// very next push, and that results always match an open invocation
func (s *Store) checkIntegrity(blocks []ContentBlock) error {
	pending := s.pendingToolUse

	for _, b := range blocks {
		switch b.Type {
		case BlockToolResult:
			if pending == "" {
				return &IntegrityError{ToolUseID: b.ToolUseID, Reason: "tool result without a pending invocation"}
			}
			if b.ToolUseID != pending {
				return &IntegrityError{ToolUseID: b.ToolUseID, Reason: "tool result does not match the pending invocation " + pending}
			}
			pending = ""
		case BlockToolUse:
			if pending != "" {
				return &IntegrityError{ToolUseID: pending, Reason: "new content pushed while invocation is unresolved"}
			}
			pending = b.ID
		default:
			if pending != "" {
				return &IntegrityError{ToolUseID: pending, Reason: "new content pushed while invocation is unresolved"}
			}
		}
	}
	return nil
}

// applyPairing updates the pending invocation bookkeeping after a push
func (s *Store) applyPairing(blocks []ContentBlock) {
	for _, b := range blocks {
		switch b.Type {
		case BlockToolUse:
			s.pendingToolUse = b.ID
		case BlockToolResult:
			if b.ToolUseID == s.pendingToolUse {
				s.pendingToolUse = ""
			}
		}
	}
}

// Messages returns the role/content view of history
func (s *Store) Messages() []Message {
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// ConversationMessages returns the full stored records
func (s *Store) ConversationMessages() []ConversationMessage {
	out := make([]ConversationMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the current message count
func (s *Store) Len() int {
	return len(s.messages)
}

// CheckpointForMessage returns the checkpoint id referenced by a message
func (s *Store) CheckpointForMessage(messageID string) (string, error) {
	for _, m := range s.messages {
		if m.ID == messageID {
			return m.CheckpointID, nil
		}
	}
	return "", ErrMessageNotFound
}

// RollbackTo removes every message at or after messageID and returns the
// number removed. The inherited checkpoint id is reset to the one
// referenced by the new last message, or cleared when history empties.
func (s *Store) RollbackTo(messageID string) (int, error) {
	idx := -1
	for i, m := range s.messages {
		if m.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, ErrMessageNotFound
	}

	removed := len(s.messages) - idx
	s.messages = s.messages[:idx]

	if len(s.messages) == 0 {
		s.lastCheckpointID = ""
	} else {
		s.lastCheckpointID = s.messages[len(s.messages)-1].CheckpointID
	}

	// Recompute pairing state for the surviving history
	s.pendingToolUse = ""
	for _, m := range s.messages {
		s.applyPairing(m.Content)
	}

	return removed, nil
}

// RecordFileRead notes that a file path has been read this session
func (s *Store) RecordFileRead(path string) {
	if _, ok := s.readFiles[path]; ok {
		return
	}
	s.readFiles[path] = struct{}{}
	s.readOrder = append(s.readOrder, path)
}

// HasReadFile reports whether a path was read this session
func (s *Store) HasReadFile(path string) bool {
	_, ok := s.readFiles[path]
	return ok
}

// ReadFiles returns read paths in first-read order
func (s *Store) ReadFiles() []string {
	out := make([]string, len(s.readOrder))
	copy(out, s.readOrder)
	return out
}
