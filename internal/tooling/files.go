package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"codeloft/internal/scrape"
	"codeloft/internal/store"
)

// deps bundles what every file tool needs: the internal-key facade, the key
// itself, and the project the agent run is scoped to.
type deps struct {
	sys       *store.System
	key       string
	projectID string
}

// ProjectTools builds the full tool set for one agent run, all scoped to the
// given project.
func ProjectTools(sys *store.System, key, projectID string, scraper scrape.Scraper) []Tool {
	d := deps{sys: sys, key: key, projectID: projectID}
	return []Tool{
		&ReadFilesTool{d},
		&ListFilesTool{d},
		&CreateFilesTool{d},
		&CreateFolderTool{d},
		&RenameFileTool{d},
		&DeleteFilesTool{d},
		&UpdateFileTool{d},
		&ScrapeURLsTool{scraper: scraper},
	}
}

// checkParent resolves the optional parentId argument. Empty means the
// project root. A non-empty id must name a folder in the same project; any
// violation comes back as an agent-facing error string.
func (d deps) checkParent(ctx context.Context, parentID string) (*string, string) {
	if parentID == "" {
		return nil, ""
	}
	parent, err := d.sys.GetNode(ctx, d.key, parentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Sprintf("Error:%s not found", parentID)
	}
	if err != nil {
		return nil, fmt.Sprintf("Error:%s", err)
	}
	if parent.Type != store.TypeFolder {
		return nil, fmt.Sprintf("Error:%s is a file not a folder", parent.Name)
	}
	if parent.ProjectID != d.projectID {
		return nil, fmt.Sprintf("Error:%s is not in the same project", parent.Name)
	}
	return &parent.ID, ""
}

// ReadFilesTool returns the contents of files by id.
type ReadFilesTool struct{ deps }

func (t *ReadFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "readFiles",
			Description: "Read the file content from the project and return the file content",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"fileIds": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Array of file IDs to read",
					},
				},
				"required": []string{"fileIds"},
			},
		},
	}
}

func (t *ReadFilesTool) Call(ctx context.Context, args map[string]any) (string, error) {
	fileIDs, err := stringSliceArg(args, "fileIds")
	if err != nil {
		return fmt.Sprintf("Error:%s", err), nil
	}
	type entry struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	var results []entry
	for _, id := range fileIDs {
		node, err := t.sys.GetNode(ctx, t.key, id)
		if err != nil {
			continue
		}
		if node.Type != store.TypeFile || node.ProjectID != t.projectID {
			continue
		}
		content, err := t.sys.NodeContent(ctx, t.key, id)
		if err != nil {
			continue
		}
		results = append(results, entry{ID: node.ID, Name: node.Name, Content: content})
	}
	if len(results) == 0 {
		return "Error:no files found with the provided Ids, use listFiles to get valid file Ids", nil
	}
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Sprintf("Error:%s", err), nil
	}
	return string(data), nil
}

// ListFilesTool dumps the project tree as a flat JSON list.
type ListFilesTool struct{ deps }

func (t *ListFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "listFiles",
			Description: "List all files and folders in the project. Returns names, IDs, types and parentId for each item. Items with parentId null are at the root level. Use the parentId to understand the folder structure: items with the same parentId are in the same folder.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

func (t *ListFilesTool) Call(ctx context.Context, _ map[string]any) (string, error) {
	nodes, err := t.sys.ListAll(ctx, t.key, t.projectID)
	if err != nil {
		return fmt.Sprintf("Error:%s", err), nil
	}
	type entry struct {
		ID       string  `json:"id"`
		Name     string  `json:"name"`
		Type     string  `json:"type"`
		ParentID *string `json:"parentId"`
	}
	out := make([]entry, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, entry{ID: n.ID, Name: n.Name, Type: n.Type, ParentID: n.ParentID})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf("Error:%s", err), nil
	}
	return string(data), nil
}

// CreateFilesTool batch-creates files under one parent folder.
type CreateFilesTool struct{ deps }

func (t *CreateFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "createFiles",
			Description: "Create multiple files at once in the same folder. Use this to batch create files that share the same parent folder, more efficient than creating files one by one.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"parentId": map[string]any{
						"type":        "string",
						"description": "The parent folder ID, empty string for the project root",
					},
					"files": map[string]any{
						"type":        "array",
						"description": "Array of files to create",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"name": map[string]any{
									"type":        "string",
									"description": "The file name including extension",
								},
								"content": map[string]any{
									"type":        "string",
									"description": "The file content",
								},
							},
							"required": []string{"name", "content"},
						},
					},
				},
				"required": []string{"parentId", "files"},
			},
		},
	}
}

func (t *CreateFilesTool) Call(ctx context.Context, args map[string]any) (string, error) {
	parentArg, _ := stringArg(args, "parentId")
	files, errMsg := batchFilesArg(args)
	if errMsg != "" {
		return errMsg, nil
	}
	parentID, errMsg := t.checkParent(ctx, parentArg)
	if errMsg != "" {
		return errMsg, nil
	}
	results, err := t.sys.CreateFiles(ctx, t.key, t.projectID, parentID, files)
	if err != nil {
		return fmt.Sprintf("Error:%s", err), nil
	}
	var created, failed []string
	for _, r := range results {
		if r.Error == "" {
			created = append(created, r.Name)
		} else {
			failed = append(failed, fmt.Sprintf("%s (%s)", r.Name, r.Error))
		}
	}
	response := fmt.Sprintf("Created %d file(s)", len(created))
	if len(created) > 0 {
		response += ":" + strings.Join(created, ", ")
	}
	if len(failed) > 0 {
		response += ":" + strings.Join(failed, ", ")
	}
	return response, nil
}

func batchFilesArg(args map[string]any) ([]store.BatchFile, string) {
	raw, ok := args["files"].([]any)
	if !ok || len(raw) == 0 {
		return nil, "Error:At least one file is required"
	}
	out := make([]store.BatchFile, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, "Error:files must be an array of {name, content} objects"
		}
		name, _ := stringArg(obj, "name")
		if name == "" {
			return nil, "Error:File name is required"
		}
		content, _ := stringArg(obj, "content")
		out = append(out, store.BatchFile{Name: name, Content: content})
	}
	return out, ""
}

// CreateFolderTool creates one folder.
type CreateFolderTool struct{ deps }

func (t *CreateFolderTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "createFolder",
			Description: "Create a new folder in the project",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "The name of the folder to create",
					},
					"parentId": map[string]any{
						"type":        "string",
						"description": "The parent folder of the folder to create, empty for the project root",
					},
				},
				"required": []string{"name"},
			},
		},
	}
}

func (t *CreateFolderTool) Call(ctx context.Context, args map[string]any) (string, error) {
	name, _ := stringArg(args, "name")
	if name == "" {
		return "Error:folder name is required", nil
	}
	parentArg, _ := stringArg(args, "parentId")
	parentID, errMsg := t.checkParent(ctx, parentArg)
	if errMsg != "" {
		return errMsg, nil
	}
	folder, err := t.sys.CreateFolder(ctx, t.key, t.projectID, parentID, name)
	if err != nil {
		return fmt.Sprintf("Error:%s", err), nil
	}
	return fmt.Sprintf("Created folder %s with id %s", folder.Name, folder.ID), nil
}

// RenameFileTool renames a file or folder by id.
type RenameFileTool struct{ deps }

func (t *RenameFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "renameFile",
			Description: "Rename an existing file or folder by its ID",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"fileId": map[string]any{
						"type":        "string",
						"description": "The id of the file to rename",
					},
					"newName": map[string]any{
						"type":        "string",
						"description": "The new name for the file or folder including extension if applicable",
					},
				},
				"required": []string{"fileId", "newName"},
			},
		},
	}
}

func (t *RenameFileTool) Call(ctx context.Context, args map[string]any) (string, error) {
	fileID, _ := stringArg(args, "fileId")
	if fileID == "" {
		return "Error:File ID is required", nil
	}
	newName, _ := stringArg(args, "newName")
	if newName == "" {
		return "Error:New name is required", nil
	}
	node, err := t.sys.GetNode(ctx, t.key, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("Error:%s not found", fileID), nil
	}
	if err != nil {
		return fmt.Sprintf("Error:%s", err), nil
	}
	if node.ProjectID != t.projectID {
		return fmt.Sprintf("Error:%s is not in the same project", node.Name), nil
	}
	if _, err := t.sys.Rename(ctx, t.key, fileID, newName, node.Type); err != nil {
		return fmt.Sprintf("Error:%s", err), nil
	}
	return fmt.Sprintf("File %s has been renamed to %s", fileID, newName), nil
}

// DeleteFilesTool deletes files and folders, cascading through folders.
type DeleteFilesTool struct{ deps }

func (t *DeleteFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "deleteFiles",
			Description: "Delete files and folders from the project. If a folder is deleted then all the files and folders in it are deleted as well.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"fileIds": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Array of file or folder IDs to delete",
					},
				},
				"required": []string{"fileIds"},
			},
		},
	}
}

func (t *DeleteFilesTool) Call(ctx context.Context, args map[string]any) (string, error) {
	fileIDs, err := stringSliceArg(args, "fileIds")
	if err != nil {
		return "Error:no files to delete", nil
	}
	// The whole batch is rejected when any entry is missing or belongs to
	// another project. Nothing is deleted until every id checks out.
	for _, id := range fileIDs {
		node, err := t.sys.GetNode(ctx, t.key, id)
		if err != nil {
			return "Error:something went wrong", nil
		}
		if node.ProjectID != t.projectID {
			return "Error:not all files have the same projectID", nil
		}
	}
	for _, id := range fileIDs {
		if _, err := t.sys.Delete(ctx, t.key, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Sprintf("Error:%s", err), nil
		}
	}
	return fmt.Sprintf("Files with IDs %s has been deleted", strings.Join(fileIDs, ", ")), nil
}

// UpdateFileTool replaces a file's content.
type UpdateFileTool struct{ deps }

func (t *UpdateFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "updateFile",
			Description: "Update the content of an existing file",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"fileId": map[string]any{
						"type":        "string",
						"description": "The ID of the file to update",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The new content of the file",
					},
				},
				"required": []string{"fileId", "content"},
			},
		},
	}
}

func (t *UpdateFileTool) Call(ctx context.Context, args map[string]any) (string, error) {
	fileID, _ := stringArg(args, "fileId")
	if fileID == "" {
		return "Error:File ID is required", nil
	}
	content, _ := stringArg(args, "content")
	node, err := t.sys.GetNode(ctx, t.key, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("Error:%s file not found", fileID), nil
	}
	if err != nil {
		return fmt.Sprintf("Error:%s", err), nil
	}
	if node.ProjectID != t.projectID {
		return fmt.Sprintf("Error:%s is not in the same project", node.Name), nil
	}
	if node.Type == store.TypeFolder {
		return fmt.Sprintf("Error:%s is a folder not a file, you can only update the content of files not folders", fileID), nil
	}
	if _, err := t.sys.UpdateContent(ctx, t.key, fileID, content); err != nil {
		return fmt.Sprintf("Error:%s", err), nil
	}
	data, _ := json.Marshal(map[string]any{"success": true, "fileId": fileID})
	return string(data), nil
}
