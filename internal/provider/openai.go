package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/featly/featly/internal/config"
	featlyErrors "github.com/featly/featly/internal/errors"

	"github.com/sashabaranov/go-openai"
)

// OpenAI implements Client over the OpenAI Assistants v2 API.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(cfg config.ProviderConfig) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, featlyErrors.Configuration("provider api key is not set; set provider.api_key or OPENAI_API_KEY")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultProviderModel
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

func (o *OpenAI) CreateAssistant(ctx context.Context, spec AssistantSpec) (Assistant, error) {
	req := o.assistantRequest(spec)
	resp, err := o.client.CreateAssistant(ctx, req)
	if err != nil {
		return Assistant{}, mapOpenAIError(err)
	}
	return fromOpenAIAssistant(resp), nil
}

func (o *OpenAI) RetrieveAssistant(ctx context.Context, assistantID string) (Assistant, error) {
	resp, err := o.client.RetrieveAssistant(ctx, assistantID)
	if err != nil {
		return Assistant{}, mapOpenAIError(err)
	}
	return fromOpenAIAssistant(resp), nil
}

func (o *OpenAI) UpdateAssistant(ctx context.Context, assistantID string, spec AssistantSpec) (Assistant, error) {
	req := o.assistantRequest(spec)
	resp, err := o.client.ModifyAssistant(ctx, assistantID, req)
	if err != nil {
		return Assistant{}, mapOpenAIError(err)
	}
	return fromOpenAIAssistant(resp), nil
}

func (o *OpenAI) DeleteAssistant(ctx context.Context, assistantID string) error {
	if _, err := o.client.DeleteAssistant(ctx, assistantID); err != nil {
		return mapOpenAIError(err)
	}
	return nil
}

func (o *OpenAI) CreateThread(ctx context.Context) (Thread, error) {
	resp, err := o.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return Thread{}, mapOpenAIError(err)
	}
	return Thread{ID: resp.ID}, nil
}

func (o *OpenAI) CreateUserMessage(ctx context.Context, threadID, text string) (Message, error) {
	resp, err := o.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: text,
	})
	if err != nil {
		return Message{}, mapOpenAIError(err)
	}
	return fromOpenAIMessage(resp), nil
}

func (o *OpenAI) ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	order := "desc"
	resp, err := o.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	messages := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		messages = append(messages, fromOpenAIMessage(m))
	}
	return messages, nil
}

func (o *OpenAI) CreateRun(ctx context.Context, threadID, assistantID string) (Run, error) {
	resp, err := o.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return Run{}, mapOpenAIError(err)
	}
	return fromOpenAIRun(resp), nil
}

func (o *OpenAI) RetrieveRun(ctx context.Context, threadID, runID string) (Run, error) {
	resp, err := o.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, mapOpenAIError(err)
	}
	return fromOpenAIRun(resp), nil
}

func (o *OpenAI) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (Run, error) {
	req := openai.SubmitToolOutputsRequest{}
	for _, out := range outputs {
		req.ToolOutputs = append(req.ToolOutputs, openai.ToolOutput{
			ToolCallID: out.ToolCallID,
			Output:     out.Output,
		})
	}
	resp, err := o.client.SubmitToolOutputs(ctx, threadID, runID, req)
	if err != nil {
		return Run{}, mapOpenAIError(err)
	}
	return fromOpenAIRun(resp), nil
}

func (o *OpenAI) UploadFile(ctx context.Context, name string, content []byte) (File, error) {
	resp, err := o.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   content,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return File{}, mapOpenAIError(err)
	}
	return File{ID: resp.ID, Name: resp.FileName}, nil
}

func (o *OpenAI) DeleteFile(ctx context.Context, fileID string) error {
	if err := o.client.DeleteFile(ctx, fileID); err != nil {
		return mapOpenAIError(err)
	}
	return nil
}

func (o *OpenAI) CreateVectorStore(ctx context.Context, name string) (VectorStore, error) {
	resp, err := o.client.CreateVectorStore(ctx, openai.VectorStoreRequest{Name: name})
	if err != nil {
		return VectorStore{}, mapOpenAIError(err)
	}
	return VectorStore{ID: resp.ID, Name: resp.Name}, nil
}

// BindVectorStore points the assistant's file-search tool at the vector
// store. Only model and tool resources are sent so name, instructions
// and tools stay untouched.
func (o *OpenAI) BindVectorStore(ctx context.Context, assistantID, vectorStoreID string) error {
	current, err := o.client.RetrieveAssistant(ctx, assistantID)
	if err != nil {
		return mapOpenAIError(err)
	}

	req := openai.AssistantRequest{
		Model: current.Model,
		ToolResources: &openai.AssistantToolResource{
			FileSearch: &openai.AssistantToolFileSearch{
				VectorStoreIDs: []string{vectorStoreID},
			},
		},
	}
	if _, err := o.client.ModifyAssistant(ctx, assistantID, req); err != nil {
		return mapOpenAIError(err)
	}
	return nil
}

func (o *OpenAI) AttachFile(ctx context.Context, vectorStoreID, fileID string) (VectorStoreFile, error) {
	resp, err := o.client.CreateVectorStoreFile(ctx, vectorStoreID, openai.VectorStoreFileRequest{FileID: fileID})
	if err != nil {
		return VectorStoreFile{}, mapOpenAIError(err)
	}
	return fromOpenAIVectorStoreFile(resp), nil
}

func (o *OpenAI) ListVectorStoreFiles(ctx context.Context, vectorStoreID string) ([]VectorStoreFile, error) {
	resp, err := o.client.ListVectorStoreFiles(ctx, vectorStoreID, openai.Pagination{})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	files := make([]VectorStoreFile, 0, len(resp.VectorStoreFiles))
	for _, f := range resp.VectorStoreFiles {
		files = append(files, fromOpenAIVectorStoreFile(f))
	}
	return files, nil
}

func (o *OpenAI) DetachFile(ctx context.Context, vectorStoreID, fileID string) error {
	if err := o.client.DeleteVectorStoreFile(ctx, vectorStoreID, fileID); err != nil {
		return mapOpenAIError(err)
	}
	return nil
}

func (o *OpenAI) assistantRequest(spec AssistantSpec) openai.AssistantRequest {
	model := spec.Model
	if model == "" {
		model = o.model
	}
	name := spec.Name
	instructions := spec.Instructions

	tools := []openai.AssistantTool{{Type: openai.AssistantToolTypeFileSearch}}
	for _, fn := range spec.Functions {
		params := fn.Parameters
		if params == nil {
			params = map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}
		}
		tools = append(tools, openai.AssistantTool{
			Type: openai.AssistantToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  params,
			},
		})
	}

	req := openai.AssistantRequest{
		Model:        model,
		Name:         &name,
		Instructions: &instructions,
		Tools:        tools,
	}
	if len(spec.VectorStoreIDs) > 0 {
		req.ToolResources = &openai.AssistantToolResource{
			FileSearch: &openai.AssistantToolFileSearch{
				VectorStoreIDs: spec.VectorStoreIDs,
			},
		}
	}
	return req
}

func fromOpenAIAssistant(a openai.Assistant) Assistant {
	out := Assistant{ID: a.ID, Model: a.Model}
	if a.Name != nil {
		out.Name = *a.Name
	}
	if a.Instructions != nil {
		out.Instructions = *a.Instructions
	}
	return out
}

func fromOpenAIMessage(m openai.Message) Message {
	out := Message{ID: m.ID, Role: m.Role}
	for _, c := range m.Content {
		if c.Text != nil {
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += c.Text.Value
		}
	}
	return out
}

func fromOpenAIRun(r openai.Run) Run {
	out := Run{ID: r.ID, ThreadID: r.ThreadID}

	switch r.Status {
	case openai.RunStatusQueued:
		out.Status = RunQueued
	case openai.RunStatusInProgress:
		out.Status = RunInProgress
	case openai.RunStatusRequiresAction:
		out.Status = RunRequiresAction
	case openai.RunStatusCompleted:
		out.Status = RunCompleted
	case openai.RunStatusFailed:
		out.Status = RunFailed
	case openai.RunStatusCancelling, openai.RunStatusCancelled:
		out.Status = RunCancelled
	case openai.RunStatusExpired:
		out.Status = RunExpired
	default:
		// Unknown statuses are reported verbatim; callers treat anything
		// non-terminal and non-actionable as still pending.
		out.Status = RunStatus(r.Status)
	}

	if r.LastError != nil {
		out.LastError = r.LastError.Message
	}

	if r.RequiredAction != nil && r.RequiredAction.SubmitToolOutputs != nil {
		for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			})
		}
	}
	return out
}

func fromOpenAIVectorStoreFile(f openai.VectorStoreFile) VectorStoreFile {
	out := VectorStoreFile{FileID: f.ID}

	switch f.Status {
	case "completed":
		out.Status = IndexCompleted
	case "failed":
		out.Status = IndexFailed
	case "cancelled":
		out.Status = IndexCancelled
	default:
		out.Status = IndexInProgress
	}
	return out
}

func mapOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusNotFound:
			return featlyErrors.Wrap(featlyErrors.ErrNotFound, apiErr.Message)
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return featlyErrors.Wrap(featlyErrors.ErrConfiguration, apiErr.Message)
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500:
			return featlyErrors.Wrap(featlyErrors.ErrTransient, apiErr.Message)
		case apiErr.HTTPStatusCode == http.StatusBadRequest:
			return featlyErrors.Wrap(featlyErrors.ErrValidation, apiErr.Message)
		}
	}

	return featlyErrors.MapRemote(err)
}
