package entity

// Page is one materialised page of a sorted collection.
type Page[T any] struct {
	Number int `json:"page"`
	Size   int `json:"size"`
	Total  int `json:"total"`
	Items  []T `json:"items"`
}

// PageRequest carries 1-based page numbering.
type PageRequest struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalize clamps page number and size into their legal ranges.
func (r PageRequest) Normalize() PageRequest {
	if r.Number < 1 {
		r.Number = 1
	}
	if r.Size < 1 {
		r.Size = DefaultPageSize
	}
	if r.Size > MaxPageSize {
		r.Size = MaxPageSize
	}
	return r
}

func (r PageRequest) Offset() int {
	return (r.Number - 1) * r.Size
}
