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

package parallel

import (
	"context"

	"github.com/gorse-io/affinity/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const chanSize = 1024

// Parallel runs nJobs jobs on nWorkers workers. worker receives the worker id
// and the job id. The first failing job cancels the rest and its error is
// returned. A panic in a job is recovered and reported as the error of that job.
func Parallel(ctx context.Context, nJobs, nWorkers int, worker func(workerId, jobId int) error) error {
	if nWorkers <= 1 {
		for jobId := 0; jobId < nJobs; jobId++ {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			if err := runJob(worker, 0, jobId); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int, chanSize)
	g.Go(func() error {
		defer close(jobs)
		for jobId := 0; jobId < nJobs; jobId++ {
			select {
			case <-gctx.Done():
				return nil
			case jobs <- jobId:
			}
		}
		return nil
	})
	for workerId := 0; workerId < nWorkers; workerId++ {
		g.Go(func() error {
			for jobId := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := runJob(worker, workerId, jobId); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(ctx.Err())
}

func runJob(worker func(workerId, jobId int) error, workerId, jobId int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Logger().Error("panic recovered", zap.Int("job_id", jobId), zap.Any("panic", r))
			err = errors.Errorf("panic in job %d: %v", jobId, r)
		}
	}()
	return worker(workerId, jobId)
}
