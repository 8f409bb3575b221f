// Package tools adapts the WebUI knowledge and file API into chat tools.
//
// Every operation emits progress through an events.Sink, makes one or two
// REST calls, finishes with exactly one terminal status event and returns a
// JSON string. Failures are reported in the returned JSON, never as errors.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/events"
	"github.com/Dmi3yy/webui-pipes/internal/webui"
)

// Tools wraps a WebUI client.
type Tools struct {
	client    *webui.Client
	uiBaseURL string
	logger    *slog.Logger
}

// New returns tools over client. uiBaseURL (UI_BASE_URL) roots the
// workspace links added to results.
func New(client *webui.Client, uiBaseURL string, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{
		client:    client,
		uiBaseURL: strings.TrimRight(uiBaseURL, "/"),
		logger:    logger,
	}
}

func (t *Tools) knowledgeLink(id string) string {
	return t.uiBaseURL + "/workspace/knowledge/" + id
}

func (t *Tools) fileLink(id string) string {
	return t.uiBaseURL + "/workspace/file/" + id
}

// CreateKnowledge creates a knowledge base.
func (t *Tools) CreateKnowledge(ctx context.Context, name, description string, user *domain.User, sink events.Sink) string {
	st := events.NewPlainStatus(sink)
	st.Progress(ctx, "Creating knowledge entry...")

	status, data := t.client.CreateKnowledge(ctx, name, description, user)
	if status != http.StatusOK {
		st.Fail(ctx, "Failed to create knowledge")
		return encode(data)
	}
	st.Success(ctx, "Knowledge created")
	t.linkObject(data, t.knowledgeLink)
	return encode(data)
}

// KnowledgeList lists the knowledge bases visible to user.
func (t *Tools) KnowledgeList(ctx context.Context, user *domain.User, sink events.Sink) string {
	st := events.NewPlainStatus(sink)
	st.Progress(ctx, "Fetching knowledges...")

	status, data := t.client.ListKnowledge(ctx, user)
	if status != http.StatusOK {
		st.Fail(ctx, "Failed to fetch knowledges")
		return encode(data)
	}
	st.Success(ctx, "Knowledge list retrieved")
	for _, kb := range webui.ObjectList(data) {
		t.linkObject(kb, t.knowledgeLink)
	}
	return encode(data)
}

func (t *Tools) GetKnowledgeByID(ctx context.Context, id string, user *domain.User, sink events.Sink) string {
	st := events.NewPlainStatus(sink)
	st.Progress(ctx, "Fetching knowledge...")

	status, data := t.client.GetKnowledge(ctx, id, user)
	if status != http.StatusOK {
		st.Fail(ctx, "Knowledge not found")
		return encode(data)
	}
	st.Success(ctx, "Knowledge retrieved")
	t.linkObject(data, t.knowledgeLink)
	return encode(data)
}

func (t *Tools) DeleteKnowledge(ctx context.Context, id string, user *domain.User, sink events.Sink) string {
	st := events.NewPlainStatus(sink)
	st.Progress(ctx, "Deleting knowledge...")

	status, data := t.client.DeleteKnowledge(ctx, id, user)
	if status != http.StatusOK {
		st.Fail(ctx, "Deletion failed")
		return encode(data)
	}
	st.Success(ctx, "Knowledge deleted")
	return encode(data)
}

func (t *Tools) AddFileToKnowledge(ctx context.Context, kbID, fileID string, user *domain.User, sink events.Sink) string {
	st := events.NewPlainStatus(sink)
	st.Progress(ctx, "Adding file to knowledge...")

	status, data := t.client.AddFileToKnowledge(ctx, kbID, fileID, user)
	if status != http.StatusOK {
		st.Fail(ctx, "Failed to add file")
		return encode(data)
	}
	st.Success(ctx, "File added")
	return encode(data)
}

func (t *Tools) RemoveFileFromKnowledge(ctx context.Context, kbID, fileID string, user *domain.User, sink events.Sink) string {
	st := events.NewPlainStatus(sink)
	st.Progress(ctx, "Removing file from knowledge...")

	status, data := t.client.RemoveFileFromKnowledge(ctx, kbID, fileID, user)
	if status != http.StatusOK {
		st.Fail(ctx, "Failed to remove file")
		return encode(data)
	}
	st.Success(ctx, "File removed")
	return encode(data)
}

// GetFilesThisChat lists the files uploaded in the chat named by
// metadata["chat_id"].
func (t *Tools) GetFilesThisChat(ctx context.Context, metadata domain.Metadata, user *domain.User, sink events.Sink) string {
	st := events.NewStatus(sink)
	chatID := metadata.String("chat_id")
	if chatID == "" {
		st.Fail(ctx, "Missing chat context")
		return encode(map[string]any{"message": "Missing chat context"})
	}
	st.Progress(ctx, "Fetching chat files...")
	return t.filterFiles(ctx, st, "chat_id", chatID, user)
}

// GetFilesFromKnowledge lists files attached to a knowledge collection.
//
// Deprecated: knowledge bases list their own files; use GetKnowledgeByID.
func (t *Tools) GetFilesFromKnowledge(ctx context.Context, knowledgeID string, user *domain.User, sink events.Sink) string {
	st := events.NewStatus(sink)
	st.Progress(ctx, "Fetching knowledge files...")
	return t.filterFiles(ctx, st, "collection_name", knowledgeID, user)
}

func (t *Tools) filterFiles(ctx context.Context, st *events.Status, metaKey, want string, user *domain.User) string {
	status, data := t.client.ListFiles(ctx, user)
	if status != http.StatusOK {
		st.Fail(ctx, "Error contacting API")
		return encode(data)
	}

	files := make([]map[string]any, 0)
	for _, f := range webui.ObjectList(data) {
		meta, _ := f["meta"].(map[string]any)
		if value, ok := meta[metaKey].(string); !ok || value != want {
			continue
		}
		t.linkObject(f, t.fileLink)
		files = append(files, f)
	}
	st.Success(ctx, fmt.Sprintf("Found %d file(s)", len(files)))
	return encode(map[string]any{"files": files})
}

// DeleteFile deletes a file after checking that user owns it.
func (t *Tools) DeleteFile(ctx context.Context, fileID string, user *domain.User, sink events.Sink) string {
	st := events.NewStatus(sink)
	userID := user.UserID()
	if userID == "" {
		st.Fail(ctx, "Missing user context")
		return encode(map[string]any{"message": "Missing user context"})
	}

	st.Progress(ctx, "Verifying ownership…")
	status, data := t.client.GetFile(ctx, fileID, user)
	if status != http.StatusOK {
		st.Fail(ctx, "File not found")
		return encode(map[string]any{"message": "File not found"})
	}
	file, _ := data.(map[string]any)
	if owner, _ := file["user_id"].(string); owner != userID {
		st.Fail(ctx, "Access denied")
		return encode(map[string]any{"message": "Access denied"})
	}

	st.Progress(ctx, "Deleting file...")
	status, data = t.client.DeleteFile(ctx, fileID, user)
	if status != http.StatusOK {
		st.Fail(ctx, "Deletion failed")
		return encode(data)
	}
	st.Success(ctx, "File deleted")
	return encode(map[string]any{"message": "File deleted", "id": fileID})
}

// linkObject adds a "link" to data when it is an object with a string id.
func (t *Tools) linkObject(data any, link func(string) string) {
	obj, ok := data.(map[string]any)
	if !ok {
		return
	}
	if id, ok := obj["id"].(string); ok && id != "" {
		obj["link"] = link(id)
	}
}

func encode(v any) string {
	s, err := domain.MarshalUnescaped(v)
	if err != nil {
		return domain.NewErrorPayload(domain.ErrorCodeInvalidRequest, err.Error()).String()
	}
	return s
}
