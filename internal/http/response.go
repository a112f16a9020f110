package http

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// Response represents the standard API response format. Values are not
// wrapped in it; GET returns the raw bytes.
type Response struct {
	Status  Status `json:"status,omitempty"`
	Existed *bool  `json:"existed,omitempty"`
	Error   string `json:"error,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewSuccessResponse() Response {
	return Response{Status: StatusSuccess}
}

func NewDeleteResponse(existed bool) Response {
	return Response{Status: StatusSuccess, Existed: &existed}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}
