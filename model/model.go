// Copyright 2020 gorse Project Authors
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

package model

import (
	"github.com/gorse-io/affinity/base"
)

// Model is a trainer configured by hyper-parameters.
type Model interface {
	SetParams(params Params)
	GetParams() Params
}

// BaseModel keeps hyper-parameters and a random generator seeded by
// RandomState. Trainers embed it.
type BaseModel struct {
	Params Params
	rng    base.RandomGenerator
}

// SetParams stores a copy of params and reseeds the random generator.
func (m *BaseModel) SetParams(params Params) {
	m.Params = params.Copy()
	m.rng = base.NewRandomGenerator(m.Params.GetInt64(RandomState, 0))
}

func (m *BaseModel) GetParams() Params {
	return m.Params
}

func (m *BaseModel) GetRandomGenerator() base.RandomGenerator {
	return m.rng
}
