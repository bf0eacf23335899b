package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileNode is one entry in a project's virtual file tree. ParentID nil means
// the node sits at the root. StorageID, when set, references a binary blob
// whose content takes precedence over the inline Content column.
type FileNode struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	ParentID  *string   `json:"parentId"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Content   string    `json:"content,omitempty"`
	StorageID *string   `json:"storageId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PathSegment is one hop in a root-first node path.
type PathSegment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BatchFile describes one file in a createBatch request.
type BatchFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// BatchResult reports the per-item outcome of a createBatch call.
type BatchResult struct {
	Name  string `json:"name"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

const fileNodeColumns = `id, project_id, parent_id, name, type, content, storage_id, created_at, updated_at`

func scanFileNode(row interface{ Scan(...any) error }) (FileNode, error) {
	var n FileNode
	var parent, storage sql.NullString
	err := row.Scan(&n.ID, &n.ProjectID, &parent, &n.Name, &n.Type, &n.Content, &storage, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return FileNode{}, err
	}
	if parent.Valid {
		n.ParentID = &parent.String
	}
	if storage.Valid {
		n.StorageID = &storage.String
	}
	return n, nil
}

// GetNode fetches a file-tree node by id.
func (s *Store) GetNode(ctx context.Context, id string) (FileNode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileNodeColumns+` FROM files WHERE id = ?`, id)
	n, err := scanFileNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return FileNode{}, fmt.Errorf("file %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return FileNode{}, fmt.Errorf("get file: %w", err)
	}
	return n, nil
}

// NodeContent returns the effective content of a file. An attached blob takes
// precedence over the inline content column. Folders have no content.
func (s *Store) NodeContent(ctx context.Context, id string) (string, error) {
	n, err := s.GetNode(ctx, id)
	if err != nil {
		return "", err
	}
	if n.Type != TypeFile {
		return "", fmt.Errorf("file %s is a folder: %w", id, ErrTypeMismatch)
	}
	if n.StorageID != nil {
		var data []byte
		err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE id = ?`, *n.StorageID).Scan(&data)
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("get blob: %w", err)
		}
		// Dangling storage reference falls back to inline content.
	}
	return n.Content, nil
}

// AttachBlob stores binary data and points the file at it.
func (s *Store) AttachBlob(ctx context.Context, fileID string, data []byte) (string, error) {
	n, err := s.GetNode(ctx, fileID)
	if err != nil {
		return "", err
	}
	if n.Type != TypeFile {
		return "", fmt.Errorf("file %s is a folder: %w", fileID, ErrTypeMismatch)
	}
	blobID := uuid.NewString()
	now := time.Now().UTC()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO blobs (id, data, created_at) VALUES (?, ?, ?)`, blobID, data, now); err != nil {
			return fmt.Errorf("insert blob: %w", err)
		}
		if n.StorageID != nil {
			if _, err := tx.Exec(`DELETE FROM blobs WHERE id = ?`, *n.StorageID); err != nil {
				return fmt.Errorf("release blob: %w", err)
			}
		}
		if _, err := tx.Exec(`UPDATE files SET storage_id = ?, updated_at = ? WHERE id = ?`, blobID, now, fileID); err != nil {
			return fmt.Errorf("update file storage: %w", err)
		}
		return touchProjectTx(tx, n.ProjectID, now)
	})
	if err != nil {
		return "", err
	}
	return blobID, nil
}

// BlobCount reports how many blobs are stored. Used by tests and diagnostics.
func (s *Store) BlobCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count blobs: %w", err)
	}
	return n, nil
}

// ListChildren returns the nodes directly under parentID (nil for root),
// folders before files, then case-aware lexicographic by name.
func (s *Store) ListChildren(ctx context.Context, projectID string, parentID *string) ([]FileNode, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	nodes, err := s.queryNodes(ctx,
		`SELECT `+fileNodeColumns+` FROM files WHERE project_id = ? AND parent_id IS ?`,
		projectID, nullable(parentID))
	if err != nil {
		return nil, err
	}
	sortNodes(nodes)
	return nodes, nil
}

// ListAll returns every node in the project, unsorted, for flat serialization.
func (s *Store) ListAll(ctx context.Context, projectID string) ([]FileNode, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.queryNodes(ctx, `SELECT `+fileNodeColumns+` FROM files WHERE project_id = ?`, projectID)
}

// ResolvePath walks parent links upward and returns the root-first path to
// the node. A broken chain is reported as NotFound.
func (s *Store) ResolvePath(ctx context.Context, nodeID string) ([]PathSegment, error) {
	var path []PathSegment
	currentID := nodeID
	seen := make(map[string]bool)
	for currentID != "" {
		if seen[currentID] {
			return nil, fmt.Errorf("file %s: parent cycle: %w", currentID, ErrNotFound)
		}
		seen[currentID] = true
		n, err := s.GetNode(ctx, currentID)
		if err != nil {
			return nil, err
		}
		path = append(path, PathSegment{ID: n.ID, Name: n.Name})
		if n.ParentID == nil {
			break
		}
		currentID = *n.ParentID
	}
	// Reverse in place so the root comes first.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Create inserts a file or folder. It fails with Conflict when a same-type
// sibling already carries the name, and with NotFound when parentID does not
// resolve to a folder in the same project.
func (s *Store) Create(ctx context.Context, projectID string, parentID *string, name, nodeType, content string) (FileNode, error) {
	if name == "" {
		return FileNode{}, fmt.Errorf("name is required: %w", ErrValidation)
	}
	if nodeType != TypeFile && nodeType != TypeFolder {
		return FileNode{}, fmt.Errorf("type %q: %w", nodeType, ErrValidation)
	}
	if nodeType == TypeFolder && content != "" {
		return FileNode{}, fmt.Errorf("folders carry no content: %w", ErrValidation)
	}
	now := time.Now().UTC()
	n := FileNode{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		ParentID:  parentID,
		Name:      name,
		Type:      nodeType,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkParentTx(tx, projectID, parentID); err != nil {
			return err
		}
		if err := checkSiblingTx(tx, projectID, parentID, name, nodeType, ""); err != nil {
			return err
		}
		if err := insertNodeTx(tx, n); err != nil {
			return err
		}
		return touchProjectTx(tx, projectID, now)
	})
	if err != nil {
		return FileNode{}, err
	}
	return n, nil
}

// CreateBatch inserts several files under one parent. Partial success is the
// expected shape: each item reports created or conflict independently.
func (s *Store) CreateBatch(ctx context.Context, projectID string, parentID *string, files []BatchFile) ([]BatchResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("at least one file is required: %w", ErrValidation)
	}
	now := time.Now().UTC()
	results := make([]BatchResult, 0, len(files))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkParentTx(tx, projectID, parentID); err != nil {
			return err
		}
		created := make(map[string]bool)
		mutated := false
		for _, f := range files {
			if f.Name == "" {
				results = append(results, BatchResult{Name: f.Name, Error: "file name is required"})
				continue
			}
			if created[f.Name] {
				results = append(results, BatchResult{Name: f.Name, Error: "duplicate name in batch"})
				continue
			}
			err := checkSiblingTx(tx, projectID, parentID, f.Name, TypeFile, "")
			if errors.Is(err, ErrConflict) {
				results = append(results, BatchResult{Name: f.Name, Error: "file with this name already exists"})
				continue
			}
			if err != nil {
				return err
			}
			n := FileNode{
				ID:        uuid.NewString(),
				ProjectID: projectID,
				ParentID:  parentID,
				Name:      f.Name,
				Type:      TypeFile,
				Content:   f.Content,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := insertNodeTx(tx, n); err != nil {
				return err
			}
			created[f.Name] = true
			mutated = true
			results = append(results, BatchResult{Name: f.Name, ID: n.ID})
		}
		if mutated {
			return touchProjectTx(tx, projectID, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Rename changes a node's name after re-checking sibling uniqueness against
// its current parent. The expected type must match the node's actual type.
func (s *Store) Rename(ctx context.Context, nodeID, newName, expectType string) (FileNode, error) {
	if newName == "" {
		return FileNode{}, fmt.Errorf("new name is required: %w", ErrValidation)
	}
	n, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return FileNode{}, err
	}
	if expectType != "" && n.Type != expectType {
		return FileNode{}, fmt.Errorf("%s %s is a %s: %w", expectType, nodeID, n.Type, ErrTypeMismatch)
	}
	now := time.Now().UTC()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkSiblingTx(tx, n.ProjectID, n.ParentID, newName, n.Type, n.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE files SET name = ?, updated_at = ? WHERE id = ?`, newName, now, n.ID); err != nil {
			return fmt.Errorf("rename file: %w", err)
		}
		return touchProjectTx(tx, n.ProjectID, now)
	})
	if err != nil {
		return FileNode{}, err
	}
	n.Name = newName
	n.UpdatedAt = now
	return n, nil
}

// Delete removes a node. Folders cascade depth-first over all descendants.
// Each deleted file releases its attached blob. Returns how many nodes went.
func (s *Store) Delete(ctx context.Context, nodeID string) (int, error) {
	root, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	deleted := 0
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		// Explicit stack instead of recursion: the tree depth is unbounded.
		stack := []FileNode{root}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if n.Type == TypeFolder {
				children, err := queryNodesTx(tx,
					`SELECT `+fileNodeColumns+` FROM files WHERE project_id = ? AND parent_id = ?`,
					n.ProjectID, n.ID)
				if err != nil {
					return err
				}
				stack = append(stack, children...)
			}
			if n.StorageID != nil {
				if _, err := tx.Exec(`DELETE FROM blobs WHERE id = ?`, *n.StorageID); err != nil {
					return fmt.Errorf("release blob: %w", err)
				}
			}
			if _, err := tx.Exec(`DELETE FROM files WHERE id = ?`, n.ID); err != nil {
				return fmt.Errorf("delete file: %w", err)
			}
			deleted++
		}
		return touchProjectTx(tx, root.ProjectID, now)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// UpdateContent replaces a file's inline content. Folders are rejected.
func (s *Store) UpdateContent(ctx context.Context, nodeID, content string) (FileNode, error) {
	n, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return FileNode{}, err
	}
	if n.Type != TypeFile {
		return FileNode{}, fmt.Errorf("file %s is a folder: %w", nodeID, ErrTypeMismatch)
	}
	now := time.Now().UTC()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE files SET content = ?, updated_at = ? WHERE id = ?`, content, now, n.ID); err != nil {
			return fmt.Errorf("update file content: %w", err)
		}
		return touchProjectTx(tx, n.ProjectID, now)
	})
	if err != nil {
		return FileNode{}, err
	}
	n.Content = content
	n.UpdatedAt = now
	return n, nil
}

func checkParentTx(tx *sql.Tx, projectID string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	row := tx.QueryRow(`SELECT `+fileNodeColumns+` FROM files WHERE id = ?`, *parentID)
	parent, err := scanFileNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("parent %s: %w", *parentID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get parent: %w", err)
	}
	if parent.Type != TypeFolder {
		return fmt.Errorf("parent %s is a file: %w", *parentID, ErrNotFound)
	}
	if parent.ProjectID != projectID {
		return fmt.Errorf("parent %s is in another project: %w", *parentID, ErrNotFound)
	}
	return nil
}

func checkSiblingTx(tx *sql.Tx, projectID string, parentID *string, name, nodeType, excludeID string) error {
	var existing string
	err := tx.QueryRow(
		`SELECT id FROM files WHERE project_id = ? AND parent_id IS ? AND name = ? AND type = ? AND id != ?`,
		projectID, nullable(parentID), name, nodeType, excludeID).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check sibling: %w", err)
	}
	return fmt.Errorf("%s %q already exists: %w", nodeType, name, ErrConflict)
}

func insertNodeTx(tx *sql.Tx, n FileNode) error {
	if _, err := tx.Exec(
		`INSERT INTO files (id, project_id, parent_id, name, type, content, storage_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.ProjectID, nullable(n.ParentID), n.Name, n.Type, n.Content, nullable(n.StorageID), n.CreatedAt, n.UpdatedAt); err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (s *Store) queryNodes(ctx context.Context, query string, args ...any) ([]FileNode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

func queryNodesTx(tx *sql.Tx, query string, args ...any) ([]FileNode, error) {
	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

func collectNodes(rows *sql.Rows) ([]FileNode, error) {
	var out []FileNode
	for rows.Next() {
		n, err := scanFileNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func sortNodes(nodes []FileNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Type != nodes[j].Type {
			return nodes[i].Type == TypeFolder
		}
		li, lj := strings.ToLower(nodes[i].Name), strings.ToLower(nodes[j].Name)
		if li != lj {
			return li < lj
		}
		return nodes[i].Name < nodes[j].Name
	})
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
