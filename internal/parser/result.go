// Package parser defines the document-parsing capability interface,
// the registry that selects a parser for an input, and the concrete
// parsers for the supported formats.
package parser

// ChunkType labels one extracted content block.
type ChunkType string

const (
	ChunkText    ChunkType = "text"
	ChunkImage   ChunkType = "image"
	ChunkTable   ChunkType = "table"
	ChunkFormula ChunkType = "formula"
)

// Chunk is a single extracted content block.
type Chunk struct {
	Type        ChunkType `json:"type"`
	Name        string    `json:"name"`
	Content     string    `json:"content,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Document is the structured extraction output for one input file.
type Document struct {
	// Source is the object-store key the document was parsed from.
	// Set by the worker, not by parsers.
	Source    string  `json:"source,omitempty"`
	Title     string  `json:"title,omitempty"`
	Chunks    []Chunk `json:"chunks"`
	ElapsedMs int64   `json:"elapsed_ms"`
}

// TaskResult is the serialized envelope written to the object store
// for a completed task. Documents are ordered as the task's input
// refs.
type TaskResult struct {
	TaskID    string     `json:"task_id"`
	Documents []Document `json:"documents"`
}
