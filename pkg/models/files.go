package models

// FileItem is one node in the workspace tree.
type FileItem struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	IsDir    bool       `json:"is_dir"`
	Children []FileItem `json:"children,omitempty"`
}

// FileContent is the payload of /api/files/read.
type FileContent struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// FileWriteRequest is the body of /api/files/write.
type FileWriteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileWriteRangeRequest replaces a line range within a file.
// Lines are 1-based and inclusive.
type FileWriteRangeRequest struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
}

// FileCreateRequest is the body of /api/files/create.
type FileCreateRequest struct {
	Path    string `json:"path"`
	IsDir   bool   `json:"is_dir"`
	Content string `json:"content,omitempty"`
}

// FileDeleteRequest is the body of /api/files/delete.
type FileDeleteRequest struct {
	Path string `json:"path"`
}

// FileRenameRequest is the body of /api/files/rename.
type FileRenameRequest struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

// OKResponse is the generic success envelope for mutating file endpoints.
type OKResponse struct {
	Success bool `json:"success"`
}
