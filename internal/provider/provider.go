// Package provider defines the typed contract against the remote AI
// provider's hosted primitives: assistants, threads, runs, files and
// vector stores. Every other package depends on this contract, never on
// the SDK directly.
package provider

import (
	"context"
	"encoding/json"
)

type Assistant struct {
	ID           string
	Name         string
	Model        string
	Instructions string
}

// AssistantSpec describes the desired shape of an assistant on create/update.
type AssistantSpec struct {
	Name           string
	Model          string
	Instructions   string
	Functions      []FunctionDefinition
	VectorStoreIDs []string
}

type FunctionDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

type Thread struct {
	ID string
}

type Message struct {
	ID   string
	Role string
	Text string
}

type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
)

// Terminal reports whether the run can make no further progress without input.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired:
		return true
	}
	return false
}

type Run struct {
	ID        string
	ThreadID  string
	Status    RunStatus
	ToolCalls []ToolCall
	LastError string
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

type ToolOutput struct {
	ToolCallID string
	Output     string
}

type File struct {
	ID   string
	Name string
}

type VectorStore struct {
	ID   string
	Name string
}

type IndexStatus string

const (
	IndexInProgress IndexStatus = "in_progress"
	IndexCompleted  IndexStatus = "completed"
	IndexFailed     IndexStatus = "failed"
	IndexCancelled  IndexStatus = "cancelled"
)

type VectorStoreFile struct {
	FileID string
	Status IndexStatus
}

// Client is the provider resource contract. Implementations must map
// remote failures into the featly error taxonomy; in particular a
// missing resource must satisfy errors.Is(err, errors.ErrNotFound).
type Client interface {
	CreateAssistant(ctx context.Context, spec AssistantSpec) (Assistant, error)
	RetrieveAssistant(ctx context.Context, assistantID string) (Assistant, error)
	UpdateAssistant(ctx context.Context, assistantID string, spec AssistantSpec) (Assistant, error)
	DeleteAssistant(ctx context.Context, assistantID string) error

	CreateThread(ctx context.Context) (Thread, error)
	CreateUserMessage(ctx context.Context, threadID, text string) (Message, error)
	ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error)

	CreateRun(ctx context.Context, threadID, assistantID string) (Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (Run, error)

	UploadFile(ctx context.Context, name string, content []byte) (File, error)
	DeleteFile(ctx context.Context, fileID string) error

	CreateVectorStore(ctx context.Context, name string) (VectorStore, error)
	BindVectorStore(ctx context.Context, assistantID, vectorStoreID string) error
	AttachFile(ctx context.Context, vectorStoreID, fileID string) (VectorStoreFile, error)
	ListVectorStoreFiles(ctx context.Context, vectorStoreID string) ([]VectorStoreFile, error)
	DetachFile(ctx context.Context, vectorStoreID, fileID string) error
}
