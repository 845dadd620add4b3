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

// Package floats provides kernels over slices of 32-bit floats used by factor models.
package floats

func checkLen(a, b []float32) {
	if len(a) != len(b) {
		panic("floats: slice lengths do not match")
	}
}

// MulConstTo saves a * c into dst.
func MulConstTo(a []float32, c float32, dst []float32) {
	checkLen(a, dst)
	for i := range a {
		dst[i] = a[i] * c
	}
}

// MulConstAdd adds a * c to dst.
func MulConstAdd(a []float32, c float32, dst []float32) {
	checkLen(a, dst)
	for i := range a {
		dst[i] += a[i] * c
	}
}

// Dot returns the inner product of two vectors.
func Dot(a, b []float32) float32 {
	checkLen(a, b)
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
