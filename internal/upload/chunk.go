package upload

import (
	"fmt"
	"time"
)

// State is the lifecycle position of one chunk.
type State string

const (
	StatePending   State = "pending"
	StateUploading State = "uploading"
	StateRetrying  State = "retrying"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Chunk is a contiguous slice of the input uploaded as one unit.
type Chunk[T any] struct {
	Index    int
	Offset   int
	Records  []T
	State    State
	Attempts int
	Created  int
	Err      error
	Duration time.Duration
}

// Size returns the number of records in the chunk.
func (c *Chunk[T]) Size() int {
	return len(c.Records)
}

func (c *Chunk[T]) transition(to State) {
	c.State = to
}

// Split cuts records into ordered chunks of at most size records.
func Split[T any](records []T, size int) []*Chunk[T] {
	if size <= 0 {
		size = len(records)
	}
	var chunks []*Chunk[T]
	for offset := 0; offset < len(records); offset += size {
		end := offset + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, &Chunk[T]{
			Index:   len(chunks) + 1,
			Offset:  offset,
			Records: records[offset:end:end],
			State:   StatePending,
		})
	}
	return chunks
}

// ChunkError is a chunk that failed permanently after exhausting its attempts.
type ChunkError struct {
	Index    int    `json:"index"`
	Offset   int    `json:"offset"`
	Size     int    `json:"size"`
	Attempts int    `json:"attempts"`
	Message  string `json:"error"`
	Err      error  `json:"-"`
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("upload: chunk %d (records %d-%d) failed after %d attempt(s): %v",
		e.Index, e.Offset+1, e.Offset+e.Size, e.Attempts, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

func chunkError[T any](c *Chunk[T]) ChunkError {
	msg := ""
	if c.Err != nil {
		msg = c.Err.Error()
	}
	return ChunkError{
		Index:    c.Index,
		Offset:   c.Offset,
		Size:     c.Size(),
		Attempts: c.Attempts,
		Message:  msg,
		Err:      c.Err,
	}
}
