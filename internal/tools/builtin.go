package tools

import (
	"context"
	"errors"
)

type CreateKnowledgeArgs struct {
	Name        string `json:"name" jsonschema:"name of the knowledge base"`
	Description string `json:"description" jsonschema:"short description of its contents"`
}

type KnowledgeIDArgs struct {
	KnowledgeID string `json:"knowledge_id" jsonschema:"knowledge base id"`
}

type FileIDArgs struct {
	FileID string `json:"file_id" jsonschema:"file id"`
}

type KnowledgeFileArgs struct {
	KnowledgeID string `json:"knowledge_id" jsonschema:"knowledge base id"`
	FileID      string `json:"file_id" jsonschema:"file id"`
}

type NoArgs struct{}

// RegisterBuiltins registers the knowledge and file tools of t.
func RegisterBuiltins(r *Registry, t *Tools) error {
	return errors.Join(
		Register(r, "create_knowledge", "Create a knowledge base.",
			func(ctx context.Context, a CreateKnowledgeArgs, c Call) string {
				return t.CreateKnowledge(ctx, a.Name, a.Description, c.User, c.Sink)
			}),
		Register(r, "knowledge_list", "List the knowledge bases visible to the current user.",
			func(ctx context.Context, _ NoArgs, c Call) string {
				return t.KnowledgeList(ctx, c.User, c.Sink)
			}),
		Register(r, "get_knowledge_by_id", "Fetch one knowledge base.",
			func(ctx context.Context, a KnowledgeIDArgs, c Call) string {
				return t.GetKnowledgeByID(ctx, a.KnowledgeID, c.User, c.Sink)
			}),
		Register(r, "delete_knowledge", "Delete a knowledge base.",
			func(ctx context.Context, a KnowledgeIDArgs, c Call) string {
				return t.DeleteKnowledge(ctx, a.KnowledgeID, c.User, c.Sink)
			}),
		Register(r, "add_file_to_knowledge", "Attach a file to a knowledge base.",
			func(ctx context.Context, a KnowledgeFileArgs, c Call) string {
				return t.AddFileToKnowledge(ctx, a.KnowledgeID, a.FileID, c.User, c.Sink)
			}),
		Register(r, "remove_file_from_knowledge", "Detach a file from a knowledge base.",
			func(ctx context.Context, a KnowledgeFileArgs, c Call) string {
				return t.RemoveFileFromKnowledge(ctx, a.KnowledgeID, a.FileID, c.User, c.Sink)
			}),
		Register(r, "get_files_this_chat", "List files uploaded in the current chat.",
			func(ctx context.Context, _ NoArgs, c Call) string {
				return t.GetFilesThisChat(ctx, c.Metadata, c.User, c.Sink)
			}),
		Register(r, "get_files_from_knowledge", "List files attached to a knowledge collection.",
			func(ctx context.Context, a KnowledgeIDArgs, c Call) string {
				return t.GetFilesFromKnowledge(ctx, a.KnowledgeID, c.User, c.Sink)
			}, Deprecated()),
		Register(r, "delete_file", "Delete a file owned by the current user.",
			func(ctx context.Context, a FileIDArgs, c Call) string {
				return t.DeleteFile(ctx, a.FileID, c.User, c.Sink)
			}),
	)
}
