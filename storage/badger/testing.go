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
	"log/slog"

	"github.com/poiesic/ragstudio/storage"
)

// NewMemoryIndex creates an in-memory index for testing.
// Caller must close the index when done.
func NewMemoryIndex(opts ...Option) (storage.VectorIndex, error) {
	idx := &Index{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			return nil, err
		}
	}
	backend, err := OpenBackend("", true, idx.logger)
	if err != nil {
		return nil, err
	}
	return newIndex(backend, true, idx.logger), nil
}
