package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// errNotBundle marks input that is valid JSON but not an object with an
// entry array.
var errNotBundle = errors.New("not a bundle")

// rawEntry is one decoded bundle entry.
type rawEntry struct {
	// Index is the position of the entry in the bundle.
	Index int

	// FullURL is the fullUrl of the entry (if present).
	FullURL string

	// Resource is the raw JSON of the entry's resource, nil when absent.
	Resource json.RawMessage

	// Err is set if the entry could not be decoded.
	Err error
}

// entryStream reads a Bundle's entry array one entry at a time, so the whole
// bundle never has to be held as a generic JSON tree.
type entryStream struct {
	bufferSize int
}

func newEntryStream() *entryStream {
	return &entryStream{bufferSize: 64}
}

// Stream decodes the entries of the bundle in r and emits them in bundle
// order. A failure ends the stream with an entry whose Err is set. The
// channel is closed when the bundle ends, on failure, or when ctx is done.
func (s *entryStream) Stream(ctx context.Context, r io.Reader) <-chan *rawEntry {
	out := make(chan *rawEntry, s.bufferSize)

	go func() {
		defer close(out)

		emit := func(e *rawEntry) bool {
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		decoder := json.NewDecoder(r)

		// Read opening brace
		token, err := decoder.Token()
		if err != nil {
			emit(&rawEntry{Index: -1, Err: fmt.Errorf("failed to read bundle: %w", err)})
			return
		}
		if delim, ok := token.(json.Delim); !ok || delim != '{' {
			emit(&rawEntry{Index: -1, Err: fmt.Errorf("%w: expected object start, got %v", errNotBundle, token)})
			return
		}

		// Process bundle fields until we find "entry"
		for decoder.More() {
			if ctx.Err() != nil {
				emit(&rawEntry{Index: -1, Err: ctx.Err()})
				return
			}

			token, err := decoder.Token()
			if err != nil {
				emit(&rawEntry{Index: -1, Err: fmt.Errorf("failed to read field: %w", err)})
				return
			}

			fieldName, ok := token.(string)
			if !ok {
				continue
			}

			if fieldName == "entry" {
				s.streamEntries(ctx, decoder, emit)
				return
			}

			// Skip other fields
			var skip json.RawMessage
			if err := decoder.Decode(&skip); err != nil {
				emit(&rawEntry{Index: -1, Err: fmt.Errorf("failed to skip field %s: %w", fieldName, err)})
				return
			}
		}

		emit(&rawEntry{Index: -1, Err: fmt.Errorf("%w: missing entry array", errNotBundle)})
	}()

	return out
}

// streamEntries emits the elements of the entry array.
func (s *entryStream) streamEntries(ctx context.Context, decoder *json.Decoder, emit func(*rawEntry) bool) {
	token, err := decoder.Token()
	if err != nil {
		emit(&rawEntry{Index: -1, Err: fmt.Errorf("failed to read entry array: %w", err)})
		return
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		emit(&rawEntry{Index: -1, Err: fmt.Errorf("%w: entry is not an array", errNotBundle)})
		return
	}

	index := 0
	for decoder.More() {
		if ctx.Err() != nil {
			emit(&rawEntry{Index: index, Err: ctx.Err()})
			return
		}

		var entry struct {
			FullURL  string          `json:"fullUrl"`
			Resource json.RawMessage `json:"resource"`
		}
		if err := decoder.Decode(&entry); err != nil {
			emit(&rawEntry{Index: index, Err: fmt.Errorf("failed to decode entry %d: %w", index, err)})
			return
		}

		if !emit(&rawEntry{Index: index, FullURL: entry.FullURL, Resource: entry.Resource}) {
			return
		}
		index++
	}

	// Closing bracket of the entry array. Trailing bundle fields are not read.
	if _, err := decoder.Token(); err != nil {
		emit(&rawEntry{Index: index, Err: fmt.Errorf("failed to read entry array end: %w", err)})
	}
}
