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
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"github.com/gorse-io/affinity/base/log"
	"github.com/gorse-io/affinity/base/progress"
	"github.com/gorse-io/affinity/common/parallel"
	"github.com/gorse-io/affinity/dataset"
	"github.com/gorse-io/affinity/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// ALS factorizes explicit ratings by alternating least squares. With item
// factors fixed, every user factor is the solution of
//
//	(Q_u^T Q_u + \lambda n_u I) p_u = Q_u^T (r_u - \mu)
//
// where Q_u stacks factors of items rated by the user and n_u is the number of
// those ratings. Item factors are solved the same way with user factors fixed.
// Rows of one side only read the other side, so they are solved in parallel.
//
// Hyper-parameters:
//
//	NFactors	- The number of latent factors. Default is 100.
//	NEpochs		- The number of alternations. Default is 20.
//	Reg			- The regularization parameter. Default is 0.02.
//	InitMean	- The mean of initial random latent factors. Default is 0.
//	InitStdDev	- The standard deviation of initial random latent factors. Default is 0.1.
//	UseBias		- Center ratings on the global mean. Default is true.
//	RandomState	- The seed of initialization. Default is 0.
type ALS struct {
	model.BaseModel
	// Hyper parameters
	nFactors   int
	nEpochs    int
	reg        float32
	initMean   float32
	initStdDev float32
	useBias    bool
}

// NewALS creates an ALS trainer.
func NewALS(params model.Params) *ALS {
	als := new(ALS)
	als.SetParams(params)
	return als
}

// SetParams sets hyper-parameters for the ALS trainer.
func (als *ALS) SetParams(params model.Params) {
	als.BaseModel.SetParams(params)
	als.nFactors = als.Params.GetInt(model.NFactors, 100)
	als.nEpochs = als.Params.GetInt(model.NEpochs, 20)
	als.reg = als.Params.GetFloat32(model.Reg, 0.02)
	als.initMean = als.Params.GetFloat32(model.InitMean, 0)
	als.initStdDev = als.Params.GetFloat32(model.InitStdDev, 0.1)
	als.useBias = als.Params.GetBool(model.UseBias, true)
}

// Fit the ALS model.
func (als *ALS) Fit(ctx context.Context, trainSet *dataset.Dataset, config *FitConfig) (*Model, error) {
	if err := checkTrainSet(trainSet); err != nil {
		return nil, err
	}
	config = config.normalize()
	log.Logger().Info("fit als",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("n_users", trainSet.CountUsers()),
		zap.Int("n_items", trainSet.CountItems()),
		zap.Any("params", als.GetParams()),
		zap.Any("config", config))
	// reset random generator
	als.SetParams(als.Params)
	rng := als.GetRandomGenerator()
	m := newModel("als", als.Params.Copy(), trainSet)
	m.UserFactor = rng.NormalMatrix(trainSet.CountUsers(), als.nFactors, als.initMean, als.initStdDev)
	m.ItemFactor = rng.NormalMatrix(trainSet.CountItems(), als.nFactors, als.initMean, als.initStdDev)
	if als.useBias {
		m.GlobalBias = trainSet.GlobalMean()
	}

	// per-worker buffers
	solvers := make([]*rowSolver, config.Jobs)
	for i := range solvers {
		solvers[i] = newRowSolver(als.nFactors)
	}
	users, items, ratings := trainSet.Users(), trainSet.Items(), trainSet.Ratings()
	_, span := progress.Start(ctx, "ALS.Fit", als.nEpochs)
	for ep := 1; ep <= als.nEpochs; ep++ {
		fitStart := time.Now()
		// update user factors
		err := parallel.Parallel(ctx, trainSet.CountUsers(), config.Jobs, func(workerId, userIndex int) error {
			return solvers[workerId].solve(m.UserFactor[userIndex], trainSet.UserFeedback()[userIndex],
				items, ratings, m.ItemFactor, m.GlobalBias, als.reg)
		})
		if err != nil {
			span.Fail(err)
			return nil, errors.Trace(err)
		}
		// update item factors
		err = parallel.Parallel(ctx, trainSet.CountItems(), config.Jobs, func(workerId, itemIndex int) error {
			return solvers[workerId].solve(m.ItemFactor[itemIndex], trainSet.ItemFeedback()[itemIndex],
				users, ratings, m.UserFactor, m.GlobalBias, als.reg)
		})
		if err != nil {
			span.Fail(err)
			return nil, errors.Trace(err)
		}
		if ep%config.Verbose == 0 || ep == als.nEpochs {
			cost := float32(0)
			for i := range ratings {
				diff := m.internalPredict(users[i], items[i]) - ratings[i]
				cost += diff * diff
			}
			log.Logger().Debug(fmt.Sprintf("fit als %v/%v", ep, als.nEpochs),
				zap.String("fit_time", time.Since(fitStart).String()),
				zap.Float32("train_rmse", math32.Sqrt(cost/float32(len(ratings)))))
		}
		span.Add(1)
	}
	span.End()
	log.Logger().Info("fit als complete")
	return m, nil
}

// rowSolver solves the regularized normal equations of one factor row.
type rowSolver struct {
	a    *mat.SymDense
	b    *mat.VecDense
	x    *mat.VecDense
	chol mat.Cholesky
}

func newRowSolver(nFactors int) *rowSolver {
	return &rowSolver{
		a: mat.NewSymDense(nFactors, nil),
		b: mat.NewVecDense(nFactors, nil),
		x: mat.NewVecDense(nFactors, nil),
	}
}

// solve writes into dst the least squares fit of ratings at positions against
// the fixed factors of the opposite side, which are looked up through others.
func (s *rowSolver) solve(dst []float32, positions []int32, others []int32, ratings []float32,
	fixed [][]float32, mean, reg float32) error {
	if len(positions) == 0 {
		return nil
	}
	n := len(dst)
	s.a.Zero()
	s.b.Zero()
	for _, pos := range positions {
		q := fixed[others[pos]]
		r := float64(ratings[pos] - mean)
		for i := 0; i < n; i++ {
			s.b.SetVec(i, s.b.AtVec(i)+r*float64(q[i]))
			for j := i; j < n; j++ {
				s.a.SetSym(i, j, s.a.At(i, j)+float64(q[i])*float64(q[j]))
			}
		}
	}
	lambda := float64(reg) * float64(len(positions))
	for i := 0; i < n; i++ {
		s.a.SetSym(i, i, s.a.At(i, i)+lambda)
	}
	if s.chol.Factorize(s.a) {
		if err := s.chol.SolveVecTo(s.x, s.b); err != nil {
			// ill-conditioned systems still produce a usable solution
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return errors.Trace(err)
			}
		}
	} else if err := s.x.SolveVec(s.a, s.b); err != nil {
		return errors.Annotate(err, "singular normal equations")
	}
	for i := range dst {
		dst[i] = float32(s.x.AtVec(i))
	}
	return nil
}
