package httpapi

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// Entry is one key-value pair of a scan result.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response represents the standard API response format.
type Response struct {
	Status    Status                 `json:"status,omitempty"`
	Value     *string                `json:"value,omitempty"`
	Entries   []Entry                `json:"entries,omitempty"`
	Truncated bool                   `json:"truncated,omitempty"`
	Stats     map[string]interface{} `json:"stats,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewSuccessResponse() Response {
	return Response{Status: StatusSuccess}
}

// NewValueResponse keeps empty values distinguishable from a missing field.
func NewValueResponse(value string) Response {
	return Response{Status: StatusSuccess, Value: &value}
}

func NewScanResponse(entries []Entry, truncated bool) Response {
	if entries == nil {
		entries = []Entry{}
	}
	return Response{Status: StatusSuccess, Entries: entries, Truncated: truncated}
}

func NewStatsResponse(stats map[string]interface{}) Response {
	return Response{Status: StatusSuccess, Stats: stats}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}
