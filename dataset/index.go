// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"io"
	"iter"

	"github.com/gorse-io/affinity/base/encoding"
	"github.com/juju/errors"
)

// Index maps raw identifiers to dense indices in [0, Count()). Identifiers are
// appended while fitting and the mapping never changes once frozen. A frozen
// index is safe for concurrent reads.
type Index struct {
	si     map[string]int32
	is     []string
	cnt    []int
	frozen bool
}

func NewIndex() *Index {
	return &Index{si: make(map[string]int32)}
}

// FitIndex builds a frozen index over ids in first-seen order.
func FitIndex(ids iter.Seq[string]) *Index {
	idx := NewIndex()
	for id := range ids {
		idx.Add(id)
	}
	idx.Freeze()
	return idx
}

// Add returns the index of id, appending it if absent, and counts one occurrence.
func (idx *Index) Add(id string) int32 {
	if idx.frozen {
		panic("dataset: add to frozen index")
	}
	if i, ok := idx.si[id]; ok {
		idx.cnt[i]++
		return i
	}
	i := int32(len(idx.is))
	idx.si[id] = i
	idx.is = append(idx.is, id)
	idx.cnt = append(idx.cnt, 1)
	return i
}

func (idx *Index) Freeze() {
	idx.frozen = true
}

func (idx *Index) Frozen() bool {
	return idx.frozen
}

// Encode returns the index of id or ErrUnknownIdentifier.
func (idx *Index) Encode(id string) (int32, error) {
	if i, ok := idx.si[id]; ok {
		return i, nil
	}
	return -1, errors.Annotatef(ErrUnknownIdentifier, "%q", id)
}

func (idx *Index) Decode(i int32) (string, bool) {
	if i < 0 || int(i) >= len(idx.is) {
		return "", false
	}
	return idx.is[i], true
}

func (idx *Index) Count() int32 {
	return int32(len(idx.is))
}

// Freq returns how many times the identifier at i was added.
func (idx *Index) Freq(i int32) int {
	if i < 0 || int(i) >= len(idx.cnt) {
		return 0
	}
	return idx.cnt[i]
}

// Names returns identifiers in index order.
func (idx *Index) Names() []string {
	return idx.is
}

// Marshal writes identifiers and frequencies.
func (idx *Index) Marshal(w io.Writer) error {
	if err := encoding.WriteGob(w, idx.is); err != nil {
		return errors.Trace(err)
	}
	return encoding.WriteGob(w, idx.cnt)
}

// UnmarshalIndex reads an index written by Marshal. The result is frozen.
func UnmarshalIndex(r io.Reader) (*Index, error) {
	idx := NewIndex()
	if err := encoding.ReadGob(r, &idx.is); err != nil {
		return nil, errors.Trace(err)
	}
	if err := encoding.ReadGob(r, &idx.cnt); err != nil {
		return nil, errors.Trace(err)
	}
	if len(idx.is) != len(idx.cnt) {
		return nil, errors.NotValidf("index with %d names and %d counts", len(idx.is), len(idx.cnt))
	}
	for i, id := range idx.is {
		if _, exist := idx.si[id]; exist {
			return nil, errors.NotValidf("duplicate identifier %q", id)
		}
		idx.si[id] = int32(i)
	}
	idx.Freeze()
	return idx, nil
}
