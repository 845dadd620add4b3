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

package mf

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/chewxy/math32"
	"github.com/gorse-io/affinity/base/encoding"
	"github.com/gorse-io/affinity/common/floats"
	"github.com/gorse-io/affinity/dataset"
	"github.com/gorse-io/affinity/model"
	"github.com/juju/errors"
)

// ErrInsufficientTrainingData is returned by Fit when the training set cannot
// determine a factorization.
var ErrInsufficientTrainingData = errors.New("insufficient training data")

// InsufficientDataError reports the size of a rejected training set.
type InsufficientDataError struct {
	Records int
	Users   int
	Items   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: %d records, %d users, %d items", e.Records, e.Users, e.Items)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientTrainingData
}

func checkTrainSet(trainSet *dataset.Dataset) error {
	if trainSet.Count() == 0 || trainSet.CountUsers() < 2 || trainSet.CountItems() < 2 {
		return &InsufficientDataError{
			Records: trainSet.Count(),
			Users:   trainSet.CountUsers(),
			Items:   trainSet.CountItems(),
		}
	}
	return nil
}

type FitConfig struct {
	Jobs    int
	Verbose int
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:    1,
		Verbose: 10,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

func (config *FitConfig) normalize() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	c := *config
	c.Jobs = max(c.Jobs, 1)
	if c.Verbose <= 0 {
		c.Verbose = 10
	}
	return &c
}

// Trainer fits a Model from an encoded training partition.
type Trainer interface {
	model.Model
	Fit(ctx context.Context, trainSet *dataset.Dataset, config *FitConfig) (*Model, error)
}

// NewTrainer creates a trainer by name.
func NewTrainer(name string, params model.Params) (Trainer, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	switch name {
	case "svd":
		return NewSVD(params), nil
	case "als":
		return NewALS(params), nil
	}
	return nil, errors.NotSupportedf("model %q", name)
}

// Model is a trained matrix factorization. A rating is estimated by
//
//	\hat r_{ui} = \mu + b_u + b_i + p_u^T q_i
//
// where biases are zero unless the trainer learned them. A Model is never
// mutated after Fit or UnmarshalModel returns, so it is safe for concurrent use.
type Model struct {
	Name            string
	Params          model.Params
	UserIndex       *dataset.Index
	ItemIndex       *dataset.Index
	UserPredictable *bitset.BitSet
	ItemPredictable *bitset.BitSet
	// Model parameters
	UserFactor [][]float32 // p_u
	ItemFactor [][]float32 // q_i
	UserBias   []float32   // b_u
	ItemBias   []float32   // b_i
	GlobalBias float32     // mu
}

func newModel(name string, params model.Params, trainSet *dataset.Dataset) *Model {
	m := &Model{
		Name:      name,
		Params:    params,
		UserIndex: trainSet.UserIndex(),
		ItemIndex: trainSet.ItemIndex(),
		UserBias:  make([]float32, trainSet.CountUsers()),
		ItemBias:  make([]float32, trainSet.CountItems()),
	}
	// set user trained flags
	m.UserPredictable = bitset.New(uint(trainSet.CountUsers()))
	for userIndex, feedback := range trainSet.UserFeedback() {
		if len(feedback) > 0 {
			m.UserPredictable.Set(uint(userIndex))
		}
	}
	// set item trained flags
	m.ItemPredictable = bitset.New(uint(trainSet.CountItems()))
	for itemIndex, feedback := range trainSet.ItemFeedback() {
		if len(feedback) > 0 {
			m.ItemPredictable.Set(uint(itemIndex))
		}
	}
	return m
}

// NFactors returns the rank of the factorization.
func (m *Model) NFactors() int {
	if len(m.UserFactor) == 0 {
		return 0
	}
	return len(m.UserFactor[0])
}

// IsUserPredictable returns false if user has no feedback and its embedding vector never be trained.
func (m *Model) IsUserPredictable(userIndex int32) bool {
	if userIndex >= m.UserIndex.Count() || userIndex < 0 {
		return false
	}
	return m.UserPredictable.Test(uint(userIndex))
}

// IsItemPredictable returns false if item has no feedback and its embedding vector never be trained.
func (m *Model) IsItemPredictable(itemIndex int32) bool {
	if itemIndex >= m.ItemIndex.Count() || itemIndex < 0 {
		return false
	}
	return m.ItemPredictable.Test(uint(itemIndex))
}

// Score estimates the rating given by a user to an item. Identifiers absent
// from the training partition yield dataset.ErrUnknownIdentifier.
func (m *Model) Score(userId, itemId string) (float32, error) {
	userIndex, err := m.UserIndex.Encode(userId)
	if err != nil {
		return math32.NaN(), errors.Annotate(err, "user")
	}
	itemIndex, err := m.ItemIndex.Encode(itemId)
	if err != nil {
		return math32.NaN(), errors.Annotate(err, "item")
	}
	if !m.IsUserPredictable(userIndex) || !m.IsItemPredictable(itemIndex) {
		return math32.NaN(), errors.Annotatef(dataset.ErrUnknownIdentifier, "untrained pair (%q, %q)", userId, itemId)
	}
	return m.internalPredict(userIndex, itemIndex), nil
}

// Predict is Score with NaN in place of errors.
func (m *Model) Predict(userId, itemId string) float32 {
	score, err := m.Score(userId, itemId)
	if err != nil {
		return math32.NaN()
	}
	return score
}

func (m *Model) internalPredict(userIndex, itemIndex int32) float32 {
	return m.GlobalBias + m.UserBias[userIndex] + m.ItemBias[itemIndex] +
		floats.Dot(m.UserFactor[userIndex], m.ItemFactor[itemIndex])
}

// Marshal model into byte stream.
func (m *Model) Marshal(w io.Writer) error {
	// write params
	if err := encoding.WriteGob(w, m.Params); err != nil {
		return errors.Trace(err)
	}
	// write indices
	if err := m.UserIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := m.ItemIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	// write predictable flags
	for _, flags := range []*bitset.BitSet{m.UserPredictable, m.ItemPredictable} {
		data, err := flags.MarshalBinary()
		if err != nil {
			return errors.Trace(err)
		}
		if err = encoding.WriteBytes(w, data); err != nil {
			return errors.Trace(err)
		}
	}
	// write latent factors
	if err := encoding.WriteMatrix(w, m.UserFactor); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, m.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	// write biases
	if err := encoding.WriteVector(w, m.UserBias); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteVector(w, m.ItemBias); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(binary.Write(w, binary.LittleEndian, m.GlobalBias))
}

// Unmarshal model from byte stream.
func (m *Model) Unmarshal(r io.Reader) error {
	var err error
	// read params
	if err = encoding.ReadGob(r, &m.Params); err != nil {
		return errors.Trace(err)
	}
	// read indices
	if m.UserIndex, err = dataset.UnmarshalIndex(r); err != nil {
		return errors.Trace(err)
	}
	if m.ItemIndex, err = dataset.UnmarshalIndex(r); err != nil {
		return errors.Trace(err)
	}
	// read predictable flags
	m.UserPredictable, m.ItemPredictable = new(bitset.BitSet), new(bitset.BitSet)
	for _, flags := range []*bitset.BitSet{m.UserPredictable, m.ItemPredictable} {
		data, err := encoding.ReadBytes(r)
		if err != nil {
			return errors.Trace(err)
		}
		if err = flags.UnmarshalBinary(data); err != nil {
			return errors.Trace(err)
		}
	}
	// read latent factors
	if m.UserFactor, err = encoding.ReadMatrix(r); err != nil {
		return errors.Trace(err)
	}
	if m.ItemFactor, err = encoding.ReadMatrix(r); err != nil {
		return errors.Trace(err)
	}
	// read biases
	if m.UserBias, err = encoding.ReadVector(r); err != nil {
		return errors.Trace(err)
	}
	if m.ItemBias, err = encoding.ReadVector(r); err != nil {
		return errors.Trace(err)
	}
	if err = binary.Read(r, binary.LittleEndian, &m.GlobalBias); err != nil {
		return errors.Trace(err)
	}
	// check shapes
	nUsers, nItems := int(m.UserIndex.Count()), int(m.ItemIndex.Count())
	if len(m.UserFactor) != nUsers || len(m.UserBias) != nUsers {
		return errors.NotValidf("user factors of %d users", nUsers)
	}
	if len(m.ItemFactor) != nItems || len(m.ItemBias) != nItems {
		return errors.NotValidf("item factors of %d items", nItems)
	}
	if nUsers > 0 && nItems > 0 && len(m.UserFactor[0]) != len(m.ItemFactor[0]) {
		return errors.NotValidf("factor rank %d and %d", len(m.UserFactor[0]), len(m.ItemFactor[0]))
	}
	return nil
}

// MarshalModel writes the model name followed by the model.
func MarshalModel(w io.Writer, m *Model) error {
	if err := encoding.WriteString(w, m.Name); err != nil {
		return errors.Trace(err)
	}
	if err := m.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// UnmarshalModel reads a model written by MarshalModel.
func UnmarshalModel(r io.Reader) (*Model, error) {
	name, err := encoding.ReadString(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	switch name {
	case "svd", "als":
	default:
		return nil, errors.NotSupportedf("model %q", name)
	}
	m := &Model{Name: name}
	if err = m.Unmarshal(r); err != nil {
		return nil, errors.Trace(err)
	}
	return m, nil
}
