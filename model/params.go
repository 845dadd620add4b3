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
	"encoding/json"
	"maps"
	"reflect"

	"github.com/gorse-io/affinity/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// ParamName is the type of hyper-parameter names.
type ParamName string

const (
	Lr          ParamName = "Lr"          // learning rate
	Reg         ParamName = "Reg"         // regularization strength
	NEpochs     ParamName = "NEpochs"     // number of epochs
	NFactors    ParamName = "NFactors"    // number of factors
	RandomState ParamName = "RandomState" // random state (seed)
	InitMean    ParamName = "InitMean"    // mean of gaussian initial parameter
	InitStdDev  ParamName = "InitStdDev"  // standard deviation of gaussian initial parameter
	UseBias     ParamName = "UseBias"     // use global, user and item biases
)

// Params stores hyper-parameters of a trainer. For example, hyper-parameters
// of SVD are given by:
//
//	model.Params{
//		model.Lr:       0.005,
//		model.NEpochs:  20,
//		model.NFactors: 100,
//		model.Reg:      0.02,
//	}
type Params map[ParamName]any

func (parameters Params) Copy() Params {
	if parameters == nil {
		return Params{}
	}
	return maps.Clone(parameters)
}

// get converts a parameter to T. The default is returned if the parameter is
// missing or cannot be converted.
func get[T any](parameters Params, name ParamName, _default T, convert func(any) (T, bool)) T {
	val, exist := parameters[name]
	if !exist {
		return _default
	}
	if converted, ok := convert(val); ok {
		return converted
	}
	log.Logger().Error("type mismatch",
		zap.String("param", string(name)),
		zap.Stringer("expect", reflect.TypeFor[T]()),
		zap.Stringer("actual", reflect.TypeOf(val)))
	return _default
}

func toInt64(val any) (int64, bool) {
	switch val := val.(type) {
	case int:
		return int64(val), true
	case int64:
		return val, true
	}
	return 0, false
}

func (parameters Params) GetInt(name ParamName, _default int) int {
	return get(parameters, name, _default, func(val any) (int, bool) {
		i, ok := toInt64(val)
		return int(i), ok
	})
}

func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	return get(parameters, name, _default, toInt64)
}

func (parameters Params) GetBool(name ParamName, _default bool) bool {
	return get(parameters, name, _default, func(val any) (bool, bool) {
		b, ok := val.(bool)
		return b, ok
	})
}

// GetFloat32 accepts floats and integers.
func (parameters Params) GetFloat32(name ParamName, _default float32) float32 {
	return get(parameters, name, _default, func(val any) (float32, bool) {
		switch val := val.(type) {
		case float32:
			return val, true
		case float64:
			return float32(val), true
		case int:
			return float32(val), true
		}
		return 0, false
	})
}

// Validate checks ranges of the parameters that are set.
func (parameters Params) Validate() error {
	if n := parameters.GetInt(NFactors, 1); n <= 0 {
		return errors.NotValidf("%s %d", NFactors, n)
	}
	if n := parameters.GetInt(NEpochs, 0); n < 0 {
		return errors.NotValidf("%s %d", NEpochs, n)
	}
	if lr := parameters.GetFloat32(Lr, 1); lr <= 0 {
		return errors.NotValidf("%s %v", Lr, lr)
	}
	for _, name := range []ParamName{Reg, InitStdDev} {
		if v := parameters.GetFloat32(name, 0); v < 0 {
			return errors.NotValidf("%s %v", name, v)
		}
	}
	return nil
}

func (parameters Params) ToString() string {
	b, err := json.Marshal(parameters)
	if err != nil {
		log.Logger().Error("failed to marshal params", zap.Error(err))
		return ""
	}
	return string(b)
}
