// Package protocol defines the deployment platform's API request/response types.
package protocol

// Entry types reported by the file listing endpoint.
const (
	EntryFile      = "file"
	EntryDirectory = "directory"
	EntrySymlink   = "symlink"
	EntryLambda    = "lambda"
)

// FileEntry is one immediate child returned by GET /v6/deployments/{id}/files.
type FileEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	UID  string `json:"uid,omitempty"`
	Mode int    `json:"mode,omitempty"`
	Size int64  `json:"size,omitempty"`
	MIME string `json:"contentType,omitempty"`
}

// IsDir reports whether the entry can be expanded.
func (e FileEntry) IsDir() bool {
	return e.Type == EntryDirectory
}

// Deployment is the subset of deployment fields the browser shows.
type Deployment struct {
	UID        string `json:"uid"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	State      string `json:"state,omitempty"`
	ReadyState string `json:"readyState,omitempty"`
	Target     string `json:"target,omitempty"`
	Source     string `json:"source,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
	Creator    struct {
		UID      string `json:"uid"`
		Username string `json:"username,omitempty"`
	} `json:"creator"`
}

// Status returns ReadyState, falling back to State.
func (d Deployment) Status() string {
	if d.ReadyState != "" {
		return d.ReadyState
	}
	return d.State
}

// DeploymentListResponse is returned by GET /v6/deployments.
type DeploymentListResponse struct {
	Deployments []Deployment `json:"deployments"`
	Pagination  struct {
		Count int    `json:"count"`
		Next  *int64 `json:"next"`
		Prev  *int64 `json:"prev"`
	} `json:"pagination"`
}

// UserResponse is returned by GET /v2/user.
type UserResponse struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
