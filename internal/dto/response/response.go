package response

// Response is the generic envelope used by the ambient (non-render)
// endpoints. The render pipeline's own endpoints (/render, /flush) use the
// narrower schemas in render.go instead.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccess wraps data in a successful Response
func NewSuccess[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: data}
}

// NewError wraps a message in a failed Response
func NewError[T any](message string) Response[T] {
	return Response[T]{Success: false, Error: message}
}
