package domain

// Page is one bounded chunk of a larger result set.
type Page[T any] struct {
	Items []T
}

// CursorState is the lifecycle state of a page cursor.
type CursorState string

const (
	CursorStateInit      CursorState = "init"
	CursorStateFetching  CursorState = "fetching"
	CursorStateExhausted CursorState = "exhausted"
	CursorStateFailed    CursorState = "failed"
)
