// Package conversation manages per-project conversation contexts: the
// persisted chat history scoped to one project, loaded on activation
// and persisted best-effort when the project is switched away from or
// its context is evicted.
package conversation

import (
	"sync"
	"time"
)

// Role identifies a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is one project's conversation history.
type Context struct {
	mu sync.RWMutex

	projectID string
	messages  []Message
	updatedAt time.Time
}

// NewContext creates an empty context for a project.
func NewContext(projectID string) *Context {
	return &Context{projectID: projectID}
}

// ProjectID returns the owning project.
func (c *Context) ProjectID() string { return c.projectID }

// Append records a new message.
func (c *Context) Append(role Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	c.updatedAt = time.Now()
}

// Messages returns a copy of the history.
func (c *Context) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// UpdatedAt returns the last modification time.
func (c *Context) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// TokenEstimate approximates the context's token footprint.
// Rough heuristic: 4 characters per token.
func (c *Context) TokenEstimate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chars := 0
	for _, m := range c.messages {
		chars += len(m.Content)
	}
	return chars / 4
}

// sizeEstimate approximates the in-memory cost in bytes.
func (c *Context) sizeEstimate() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, m := range c.messages {
		total += int64(len(m.Content)) + int64(len(m.Role)) + 64
	}
	return total
}

// snapshot captures the serializable state under the read lock.
func (c *Context) snapshot() persistedContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	return persistedContext{
		Version:   persistVersion,
		ProjectID: c.projectID,
		Messages:  msgs,
		UpdatedAt: c.updatedAt,
	}
}

// persistVersion is the on-disk context format version.
const persistVersion = 1

// persistedContext is the on-disk representation.
type persistedContext struct {
	Version   int       `json:"version"`
	ProjectID string    `json:"project_id"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
}
