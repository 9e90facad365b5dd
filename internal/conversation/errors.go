// internal/conversation/errors.go
package conversation

import (
	"errors"
	"fmt"
)

// ErrMessageNotFound is returned when a message id is absent from history
var ErrMessageNotFound = errors.New("message not found in conversation history")

// IntegrityError indicates history would contain an unmatched
// tool-invocation entry
type IntegrityError struct {
	ToolUseID string
	Reason    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("conversation integrity violation for tool use %s: %s", e.ToolUseID, e.Reason)
}
