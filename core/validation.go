// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"strings"
	"time"
)

// ValidateEntityRecord validates an EntityRecord according to domain rules.
//
// Validation rules:
//   - Name must not be blank
//   - At least one URL must be present
//   - No URL may be blank
func ValidateEntityRecord(record *EntityRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidEntity)
	}

	if strings.TrimSpace(record.Name) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEntity, ErrEmptyName)
	}

	if len(record.URLs) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEntity, ErrNoURLs)
	}

	for _, u := range record.URLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("%w: %w", ErrInvalidEntity, ErrEmptySource)
		}
	}

	return nil
}

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Source must not be empty
//   - FetchedAt must be set and not in the future
//
// Content is NOT validated: an empty page is a legitimate fetch result.
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.Source == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptySource)
	}

	if doc.FetchedAt.IsZero() || !IsValidTimestamp(doc.FetchedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateIndexedChunk validates a chunk before it is written to a collection.
//
// Validation rules:
//   - Text must not be empty
//   - Source must not be empty
//   - Vector must not be empty
//
// NOT validated (populated by the store):
//   - ID, Collection and InsertedAt
func ValidateIndexedChunk(chunk *IndexedChunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if chunk.Source == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptySource)
	}

	if len(chunk.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyVector)
	}

	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
