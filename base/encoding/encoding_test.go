// Copyright 2022 gorse Project Authors
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

package encoding

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHex(t *testing.T) {
	assert.Equal(t, "4f7e0", Hex(325600))
}

func TestWriteMatrix(t *testing.T) {
	a := [][]float32{{1, 2, 3}, {4, 5, 6}}
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteMatrix(buf, a))
	b, err := ReadMatrix(buf)
	assert.NoError(t, err)
	assert.Equal(t, a, b)

	// empty matrix
	buf.Reset()
	assert.NoError(t, WriteMatrix(buf, nil))
	b, err = ReadMatrix(buf)
	assert.NoError(t, err)
	assert.Empty(t, b)

	// ragged matrix
	assert.Error(t, WriteMatrix(buf, [][]float32{{1, 2}, {3}}))
}

func TestWriteVector(t *testing.T) {
	a := []float32{1.5, -2, 0}
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteVector(buf, a))
	b, err := ReadVector(buf)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWriteString(t *testing.T) {
	a := "abc"
	buf := bytes.NewBuffer(nil)
	err := WriteString(buf, a)
	assert.NoError(t, err)
	var b string
	b, err = ReadString(buf)
	assert.NoError(t, err)
	assert.Equal(t, a, b)

	// truncated stream
	buf.Reset()
	assert.NoError(t, WriteString(buf, "abcdef"))
	_, err = ReadString(bytes.NewReader(buf.Bytes()[:6]))
	assert.Error(t, err)
}

func TestWriteGob(t *testing.T) {
	a := map[string]int{"n_factors": 8}
	buf := bytes.NewBuffer(nil)
	err := WriteGob(buf, a)
	assert.NoError(t, err)
	var b map[string]int
	err = ReadGob(buf, &b)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}
