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


// Package storage provides the storage abstraction layer for itk.
//
// This package defines the interfaces that decouple the scrape pipeline from
// the on-disk representation of its vector collections and run history.
//
// # Architecture
//
//   - VectorIndex: named collections, created on first use
//   - Collection: append-only embedded chunks with brute-force similarity search
//   - RunRepository: summary of the most recent scrape cycle
//
// The BadgerDB implementation lives in the badger subpackage:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	index := badger.NewIndex(backend)
//	col, err := index.GetOrCreate(ctx, core.CollectionName("Acme"))
//
// Use in tests with in-memory storage:
//
//	index, runs, backend, err := badger.NewMemoryStores()
//
// # Thread Safety
//
// All implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
