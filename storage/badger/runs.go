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


package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/itk/core"
	"github.com/poiesic/itk/storage"
)

const lastRunName = "last"

// RunRepository implements storage.RunRepository for BadgerDB.
type RunRepository struct {
	backend *Backend
}

var _ storage.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository.
func NewRunRepository(backend *Backend) *RunRepository {
	return &RunRepository{
		backend: backend,
	}
}

// SaveRun persists a run as the most recent cycle.
func (r *RunRepository) SaveRun(ctx context.Context, run *core.Run) error {
	if run == nil {
		return storage.ErrInvalidQuery
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeRunKey(lastRunName), storage.MarshalRun(run)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LastRun retrieves the most recent run.
// Returns nil, nil if no run has been saved.
func (r *RunRepository) LastRun(ctx context.Context) (*core.Run, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var run *core.Run
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeRunKey(lastRunName))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			run, unmarshalErr = storage.UnmarshalRun(val)
			return unmarshalErr
		})
	}, false)

	return run, err
}
