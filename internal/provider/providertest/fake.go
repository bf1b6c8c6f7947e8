// Package providertest provides an in-memory Client used by package tests
// across the module. Behavior is deterministic and scriptable: remote run
// and indexing progress is expressed as sequences the fake replays.
package providertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/featly/featly/internal/errors"
	"github.com/featly/featly/internal/provider"
)

type Fake struct {
	mu     sync.Mutex
	nextID int

	Assistants map[string]provider.Assistant
	Threads    map[string][]provider.Message
	Files      map[string]provider.File
	Stores     map[string][]provider.VectorStoreFile
	Bindings   map[string]string

	DeletedAssistants []string
	DeletedFiles      []string

	// IndexCompletionAfter is the number of ListVectorStoreFiles calls
	// before attached files report completed. Negative means never.
	IndexCompletionAfter int
	listCalls            int

	// RunSequence is replayed by CreateRun / RetrieveRun / SubmitToolOutputs.
	// When exhausted, the last element repeats. Empty defaults to an
	// immediately completed run.
	RunSequence []provider.Run
	runCursor   int

	// AssistantReply is returned by ListMessages as the newest message.
	AssistantReply string

	// FailWith forces an error for the named operation ("CreateAssistant",
	// "UploadFile", ...). The failure is persistent until cleared.
	FailWith map[string]error

	Calls map[string]int
}

func NewFake() *Fake {
	return &Fake{
		Assistants: make(map[string]provider.Assistant),
		Threads:    make(map[string][]provider.Message),
		Files:      make(map[string]provider.File),
		Stores:     make(map[string][]provider.VectorStoreFile),
		FailWith:   make(map[string]error),
		Calls:      make(map[string]int),
	}
}

var _ provider.Client = (*Fake)(nil)

func (f *Fake) begin(op string) error {
	f.Calls[op]++
	if err, ok := f.FailWith[op]; ok && err != nil {
		return err
	}
	return nil
}

func (f *Fake) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s_%04d", prefix, f.nextID)
}

// Seed inserts an assistant without counting as a creation.
func (f *Fake) Seed(a provider.Assistant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Assistants[a.ID] = a
}

func (f *Fake) CreateAssistant(ctx context.Context, spec provider.AssistantSpec) (provider.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateAssistant"); err != nil {
		return provider.Assistant{}, err
	}
	a := provider.Assistant{
		ID:           f.id("asst"),
		Name:         spec.Name,
		Model:        spec.Model,
		Instructions: spec.Instructions,
	}
	f.Assistants[a.ID] = a
	return a, nil
}

func (f *Fake) RetrieveAssistant(ctx context.Context, assistantID string) (provider.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("RetrieveAssistant"); err != nil {
		return provider.Assistant{}, err
	}
	a, ok := f.Assistants[assistantID]
	if !ok {
		return provider.Assistant{}, errors.NotFound("assistant " + assistantID)
	}
	return a, nil
}

func (f *Fake) UpdateAssistant(ctx context.Context, assistantID string, spec provider.AssistantSpec) (provider.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateAssistant"); err != nil {
		return provider.Assistant{}, err
	}
	a, ok := f.Assistants[assistantID]
	if !ok {
		return provider.Assistant{}, errors.NotFound("assistant " + assistantID)
	}
	if spec.Name != "" {
		a.Name = spec.Name
	}
	if spec.Instructions != "" {
		a.Instructions = spec.Instructions
	}
	f.Assistants[assistantID] = a
	return a, nil
}

func (f *Fake) DeleteAssistant(ctx context.Context, assistantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteAssistant"); err != nil {
		return err
	}
	if _, ok := f.Assistants[assistantID]; !ok {
		return errors.NotFound("assistant " + assistantID)
	}
	delete(f.Assistants, assistantID)
	f.DeletedAssistants = append(f.DeletedAssistants, assistantID)
	return nil
}

func (f *Fake) CreateThread(ctx context.Context) (provider.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateThread"); err != nil {
		return provider.Thread{}, err
	}
	id := f.id("thread")
	f.Threads[id] = nil
	return provider.Thread{ID: id}, nil
}

func (f *Fake) CreateUserMessage(ctx context.Context, threadID, text string) (provider.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateUserMessage"); err != nil {
		return provider.Message{}, err
	}
	if _, ok := f.Threads[threadID]; !ok {
		return provider.Message{}, errors.NotFound("thread " + threadID)
	}
	m := provider.Message{ID: f.id("msg"), Role: "user", Text: text}
	f.Threads[threadID] = append(f.Threads[threadID], m)
	return m, nil
}

func (f *Fake) ListMessages(ctx context.Context, threadID string, limit int) ([]provider.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListMessages"); err != nil {
		return nil, err
	}
	if f.AssistantReply != "" {
		return []provider.Message{{ID: "msg_reply", Role: "assistant", Text: f.AssistantReply}}, nil
	}
	msgs := f.Threads[threadID]
	out := make([]provider.Message, len(msgs))
	for i := range msgs {
		out[len(msgs)-1-i] = msgs[i]
	}
	return out, nil
}

func (f *Fake) nextRun(threadID string) provider.Run {
	if len(f.RunSequence) == 0 {
		return provider.Run{ID: "run_0001", ThreadID: threadID, Status: provider.RunCompleted}
	}
	r := f.RunSequence[f.runCursor]
	if f.runCursor < len(f.RunSequence)-1 {
		f.runCursor++
	}
	if r.ID == "" {
		r.ID = "run_0001"
	}
	if r.ThreadID == "" {
		r.ThreadID = threadID
	}
	return r
}

func (f *Fake) CreateRun(ctx context.Context, threadID, assistantID string) (provider.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateRun"); err != nil {
		return provider.Run{}, err
	}
	if _, ok := f.Assistants[assistantID]; !ok {
		return provider.Run{}, errors.NotFound("assistant " + assistantID)
	}
	return f.nextRun(threadID), nil
}

func (f *Fake) RetrieveRun(ctx context.Context, threadID, runID string) (provider.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("RetrieveRun"); err != nil {
		return provider.Run{}, err
	}
	return f.nextRun(threadID), nil
}

func (f *Fake) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []provider.ToolOutput) (provider.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("SubmitToolOutputs"); err != nil {
		return provider.Run{}, err
	}
	return f.nextRun(threadID), nil
}

func (f *Fake) UploadFile(ctx context.Context, name string, content []byte) (provider.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UploadFile"); err != nil {
		return provider.File{}, err
	}
	file := provider.File{ID: f.id("file"), Name: name}
	f.Files[file.ID] = file
	return file, nil
}

func (f *Fake) DeleteFile(ctx context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteFile"); err != nil {
		return err
	}
	delete(f.Files, fileID)
	f.DeletedFiles = append(f.DeletedFiles, fileID)
	return nil
}

func (f *Fake) CreateVectorStore(ctx context.Context, name string) (provider.VectorStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateVectorStore"); err != nil {
		return provider.VectorStore{}, err
	}
	vs := provider.VectorStore{ID: f.id("vs"), Name: name}
	f.Stores[vs.ID] = nil
	return vs, nil
}

func (f *Fake) BindVectorStore(ctx context.Context, assistantID, vectorStoreID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("BindVectorStore"); err != nil {
		return err
	}
	if _, ok := f.Assistants[assistantID]; !ok {
		return errors.NotFound("assistant " + assistantID)
	}
	if f.Bindings == nil {
		f.Bindings = make(map[string]string)
	}
	f.Bindings[assistantID] = vectorStoreID
	return nil
}

func (f *Fake) AttachFile(ctx context.Context, vectorStoreID, fileID string) (provider.VectorStoreFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("AttachFile"); err != nil {
		return provider.VectorStoreFile{}, err
	}
	if _, ok := f.Stores[vectorStoreID]; !ok {
		return provider.VectorStoreFile{}, errors.NotFound("vector store " + vectorStoreID)
	}
	vf := provider.VectorStoreFile{FileID: fileID, Status: provider.IndexInProgress}
	f.Stores[vectorStoreID] = append(f.Stores[vectorStoreID], vf)
	return vf, nil
}

func (f *Fake) ListVectorStoreFiles(ctx context.Context, vectorStoreID string) ([]provider.VectorStoreFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListVectorStoreFiles"); err != nil {
		return nil, err
	}
	files, ok := f.Stores[vectorStoreID]
	if !ok {
		return nil, errors.NotFound("vector store " + vectorStoreID)
	}
	f.listCalls++
	done := f.IndexCompletionAfter >= 0 && f.listCalls > f.IndexCompletionAfter
	out := make([]provider.VectorStoreFile, len(files))
	for i, vf := range files {
		if done {
			vf.Status = provider.IndexCompleted
		}
		out[i] = vf
	}
	return out, nil
}

func (f *Fake) DetachFile(ctx context.Context, vectorStoreID, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DetachFile"); err != nil {
		return err
	}
	files := f.Stores[vectorStoreID]
	kept := files[:0]
	for _, vf := range files {
		if vf.FileID != fileID {
			kept = append(kept, vf)
		}
	}
	f.Stores[vectorStoreID] = kept
	return nil
}
