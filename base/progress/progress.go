// Copyright 2024 gorse Project Authors
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

package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type spanKeyType string

var spanKeyName = spanKeyType(uuid.New().String())

type Status string

const (
	StatusRunning  Status = "Running"
	StatusComplete Status = "Complete"
	StatusFailed   Status = "Failed"
)

// Tracer keeps root spans of long-running jobs such as training and importing.
type Tracer struct {
	name  string
	spans sync.Map
}

func NewTracer(name string) *Tracer {
	return &Tracer{name: name}
}

// Start creates a root span.
func (t *Tracer) Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	span := newSpan(name, total)
	t.spans.Store(name, span)
	return context.WithValue(ctx, spanKeyName, span), span
}

// List returns the progress of every root span, ordered by name.
func (t *Tracer) List() []Progress {
	var progress []Progress
	t.spans.Range(func(_, value any) bool {
		span := value.(*Span)
		p := span.Progress()
		p.Tracer = t.name
		progress = append(progress, p)
		return true
	})
	sort.Slice(progress, func(i, j int) bool {
		return progress[i].Name < progress[j].Name
	})
	return progress
}

type Span struct {
	mu     sync.Mutex
	name   string
	status Status
	total  int
	count  int
	err    string
	start  time.Time
	finish time.Time
	parent *Span
	child  *Span
}

func newSpan(name string, total int) *Span {
	return &Span{
		name:   name,
		status: StatusRunning,
		total:  total,
		start:  time.Now(),
	}
}

// Add advances the span by n steps.
func (s *Span) Add(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count += n
}

// End marks the span complete and detaches it from its parent.
func (s *Span) End() {
	s.mu.Lock()
	s.count = s.total
	s.status = StatusComplete
	s.finish = time.Now()
	parent := s.parent
	s.mu.Unlock()
	if parent != nil {
		parent.mu.Lock()
		if parent.child == s {
			parent.child = nil
		}
		parent.mu.Unlock()
	}
}

// Fail marks the span and all its ancestors failed.
func (s *Span) Fail(err error) {
	for span := s; span != nil; {
		span.mu.Lock()
		span.status = StatusFailed
		span.err = err.Error()
		span.finish = time.Now()
		next := span.parent
		span.mu.Unlock()
		span = next
	}
}

func (s *Span) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Progress flattens the span and its running child into a single counter:
// every step of the parent is worth child.total steps.
func (s *Span) Progress() Progress {
	s.mu.Lock()
	p := Progress{
		Name:       s.name,
		Status:     s.status,
		Error:      s.err,
		Count:      s.count,
		Total:      s.total,
		StartTime:  s.start,
		FinishTime: s.finish,
	}
	child := s.child
	s.mu.Unlock()
	if child != nil && p.Status == StatusRunning {
		c := child.Progress()
		p.Count = p.Count*c.Total + c.Count
		p.Total = p.Total * c.Total
	}
	return p
}

// Start creates a child span of the span carried by ctx. The child is not tracked
// if ctx carries no span.
func Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	child := newSpan(name, total)
	if ctx == nil {
		ctx = context.Background()
	}
	if span, ok := ctx.Value(spanKeyName).(*Span); ok {
		child.parent = span
		span.mu.Lock()
		span.child = child
		span.mu.Unlock()
	}
	return context.WithValue(ctx, spanKeyName, child), child
}

// Fail marks the span carried by ctx failed.
func Fail(ctx context.Context, err error) {
	if span, ok := ctx.Value(spanKeyName).(*Span); ok {
		span.Fail(err)
	}
}

type Progress struct {
	Tracer     string
	Name       string
	Status     Status
	Error      string
	Count      int
	Total      int
	StartTime  time.Time
	FinishTime time.Time
}
