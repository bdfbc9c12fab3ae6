package types

type SuccessEnvelope struct {
	Data any       `json:"data"`
	Meta *PageMeta `json:"meta,omitempty"`
}

// PageMeta accompanies cursor-paginated lists.
type PageMeta struct {
	NextCursor string `json:"next_cursor,omitempty"`
	Limit      int    `json:"limit"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
