package domain

import "errors"

var (
	// ErrEmptyInput signals empty text where content is required (chunker input, question).
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidArgument signals an out-of-range parameter.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrVectorDimMismatch signals an embedding whose length differs from the index dimension.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProvider signals an embedding service failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrChatProvider signals a chat completion service failure.
	ErrChatProvider = errors.New("chat provider error")
	// ErrIndexQuery signals a vector index backend failure.
	ErrIndexQuery = errors.New("index query error")
	// ErrTimeout signals that an external call exceeded its configured deadline.
	ErrTimeout = errors.New("external call timed out")
)
