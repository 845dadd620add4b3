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
	"github.com/gorse-io/affinity/common/floats"
	"github.com/gorse-io/affinity/dataset"
	"github.com/gorse-io/affinity/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// SVD is the biased matrix factorization popularized by Simon Funk. Factors are
// learned by stochastic gradient descent over observed ratings:
//
//	e_{ui} = \hat r_{ui} - r_{ui}
//	b_u <- b_u - \gamma (e_{ui} + \lambda b_u)
//	b_i <- b_i - \gamma (e_{ui} + \lambda b_i)
//	p_u <- p_u - \gamma (e_{ui} q_i + \lambda p_u)
//	q_i <- q_i - \gamma (e_{ui} p_u + \lambda q_i)
//
// Hyper-parameters:
//
//	NFactors	- The number of latent factors. Default is 100.
//	NEpochs		- The number of iteration of the SGD procedure. Default is 20.
//	Lr			- The learning rate of SGD. Default is 0.005.
//	Reg			- The regularization parameter of the cost function. Default is 0.02.
//	InitMean	- The mean of initial random latent factors. Default is 0.
//	InitStdDev	- The standard deviation of initial random latent factors. Default is 0.1.
//	UseBias		- Learn global, user and item biases. Default is true.
//	RandomState	- The seed of initialization and shuffling. Default is 0.
type SVD struct {
	model.BaseModel
	// Hyper parameters
	nFactors   int
	nEpochs    int
	lr         float32
	reg        float32
	initMean   float32
	initStdDev float32
	useBias    bool
}

// NewSVD creates a SVD trainer.
func NewSVD(params model.Params) *SVD {
	svd := new(SVD)
	svd.SetParams(params)
	return svd
}

// SetParams sets hyper-parameters for the SVD trainer.
func (svd *SVD) SetParams(params model.Params) {
	svd.BaseModel.SetParams(params)
	svd.nFactors = svd.Params.GetInt(model.NFactors, 100)
	svd.nEpochs = svd.Params.GetInt(model.NEpochs, 20)
	svd.lr = svd.Params.GetFloat32(model.Lr, 0.005)
	svd.reg = svd.Params.GetFloat32(model.Reg, 0.02)
	svd.initMean = svd.Params.GetFloat32(model.InitMean, 0)
	svd.initStdDev = svd.Params.GetFloat32(model.InitStdDev, 0.1)
	svd.useBias = svd.Params.GetBool(model.UseBias, true)
}

// Fit the SVD model. Every call starts from the configured random state.
func (svd *SVD) Fit(ctx context.Context, trainSet *dataset.Dataset, config *FitConfig) (*Model, error) {
	if err := checkTrainSet(trainSet); err != nil {
		return nil, err
	}
	config = config.normalize()
	log.Logger().Info("fit svd",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("n_users", trainSet.CountUsers()),
		zap.Int("n_items", trainSet.CountItems()),
		zap.Any("params", svd.GetParams()),
		zap.Any("config", config))
	// reset random generator
	svd.SetParams(svd.Params)
	rng := svd.GetRandomGenerator()
	m := newModel("svd", svd.Params.Copy(), trainSet)
	m.UserFactor = rng.NormalMatrix(trainSet.CountUsers(), svd.nFactors, svd.initMean, svd.initStdDev)
	m.ItemFactor = rng.NormalMatrix(trainSet.CountItems(), svd.nFactors, svd.initMean, svd.initStdDev)
	if svd.useBias {
		m.GlobalBias = trainSet.GlobalMean()
	}

	users, items, ratings := trainSet.Users(), trainSet.Items(), trainSet.Ratings()
	userGrad := make([]float32, svd.nFactors)
	itemGrad := make([]float32, svd.nFactors)
	_, span := progress.Start(ctx, "SVD.Fit", svd.nEpochs)
	for ep := 1; ep <= svd.nEpochs; ep++ {
		if err := ctx.Err(); err != nil {
			span.Fail(err)
			return nil, errors.Trace(err)
		}
		fitStart := time.Now()
		cost := float32(0)
		for _, i := range rng.Permutation(trainSet.Count()) {
			userIndex, itemIndex := users[i], items[i]
			diff := m.internalPredict(userIndex, itemIndex) - ratings[i]
			cost += diff * diff
			if svd.useBias {
				m.UserBias[userIndex] -= svd.lr * (diff + svd.reg*m.UserBias[userIndex])
				m.ItemBias[itemIndex] -= svd.lr * (diff + svd.reg*m.ItemBias[itemIndex])
			}
			userFactor, itemFactor := m.UserFactor[userIndex], m.ItemFactor[itemIndex]
			// gradients use factors before this update
			floats.MulConstTo(itemFactor, diff, userGrad)
			floats.MulConstAdd(userFactor, svd.reg, userGrad)
			floats.MulConstTo(userFactor, diff, itemGrad)
			floats.MulConstAdd(itemFactor, svd.reg, itemGrad)
			floats.MulConstAdd(userGrad, -svd.lr, userFactor)
			floats.MulConstAdd(itemGrad, -svd.lr, itemFactor)
		}
		if math32.IsNaN(cost) || math32.IsInf(cost, 0) {
			err := errors.Errorf("svd diverged at epoch %d", ep)
			span.Fail(err)
			return nil, err
		}
		if ep%config.Verbose == 0 || ep == svd.nEpochs {
			log.Logger().Debug(fmt.Sprintf("fit svd %v/%v", ep, svd.nEpochs),
				zap.String("fit_time", time.Since(fitStart).String()),
				zap.Float32("train_rmse", math32.Sqrt(cost/float32(trainSet.Count()))))
		}
		span.Add(1)
	}
	span.End()
	log.Logger().Info("fit svd complete")
	return m, nil
}
