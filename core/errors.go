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

import "errors"

// Domain validation errors
var (
	// ErrInvalidEntity indicates an EntityRecord failed validation.
	ErrInvalidEntity = errors.New("invalid entity record")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates an IndexedChunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")

	// ErrEmptyContent indicates the text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyName indicates the entity name is empty.
	ErrEmptyName = errors.New("entity name cannot be empty")

	// ErrNoURLs indicates an entity owns no URLs.
	ErrNoURLs = errors.New("entity must own at least one URL")

	// ErrEmptySource indicates the source URL is empty.
	ErrEmptySource = errors.New("source cannot be empty")

	// ErrEmptyVector indicates a stored chunk has no embedding.
	ErrEmptyVector = errors.New("vector cannot be empty")

	// ErrCorruptRecord indicates a stored record declares more data than it holds.
	ErrCorruptRecord = errors.New("corrupt record")
)
