package telegraph

// UploadedFile is one element of the array returned by POST /upload
type UploadedFile struct {
	Src string `json:"src"`
}

// ErrorResponse is returned by POST /upload when the service rejects a file
type ErrorResponse struct {
	Error string `json:"error"`
}

// Status is the outcome of a link health check
type Status string

const (
	StatusReachable   Status = "reachable"
	StatusUnreachable Status = "unreachable"
)
