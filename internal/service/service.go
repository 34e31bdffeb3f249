// Package service implements the job queues intermediaries work through.
// A Desk owns several Services; each Service keeps a FIFO queue of jobs and
// the Desk moves jobs from the queues into a bounded set of active slots
// keyed by the tick they finish on.
package service

import (
	"fmt"
	"log/slog"
	"slices"
)

// Customer is anything a job can be done for.
type Customer interface {
	CustomerID() uint64
}

// Job is one unit of work for one customer.
type Job[C Customer] struct {
	ID       string
	Customer C
	Service  *Service[C]
	Duration int // ticks
}

// Service is one kind of work a desk offers, e.g. a consultation.
type Service[C Customer] struct {
	Name     string
	Duration int

	// OnComplete runs once per finished job, after it was recorded.
	OnComplete func(*Job[C]) error

	desk    *Desk[C]
	queue   []*Job[C]
	counter int
}

// Queue appends a job for c lasting Duration+extra ticks. A customer that
// is already waiting in this queue is refused.
func (s *Service[C]) Queue(c C, extra int) (*Job[C], bool) {
	if s.Has(c) {
		slog.Warn("customer already queued",
			"desk", s.deskName(), "service", s.Name, "customer", c.CustomerID())
		return nil, false
	}
	s.counter++
	job := &Job[C]{
		ID:       fmt.Sprintf("%s-%s-%d", s.deskName(), s.Name, s.counter),
		Customer: c,
		Service:  s,
		Duration: s.Duration + extra,
	}
	s.queue = append(s.queue, job)
	return job, true
}

// Has reports whether c is waiting in the queue.
func (s *Service[C]) Has(c C) bool {
	id := c.CustomerID()
	return slices.ContainsFunc(s.queue, func(j *Job[C]) bool { return j.Customer.CustomerID() == id })
}

// Len is the number of waiting jobs.
func (s *Service[C]) Len() int { return len(s.queue) }

// Pending returns the waiting jobs in order. The slice is a copy.
func (s *Service[C]) Pending() []*Job[C] { return slices.Clone(s.queue) }

// Counter is the number of jobs ever queued.
func (s *Service[C]) Counter() int { return s.counter }

// SetCounter overrides the job counter, used when restoring state.
func (s *Service[C]) SetCounter(n int) { s.counter = n }

// Push appends an already built job, bypassing the duplicate check.
func (s *Service[C]) Push(j *Job[C]) {
	j.Service = s
	s.queue = append(s.queue, j)
}

func (s *Service[C]) deskName() string {
	if s.desk == nil {
		return ""
	}
	return s.desk.Name
}

func (s *Service[C]) pop() *Job[C] {
	j := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return j
}

// dedupe drops every job whose customer already appears earlier.
func (s *Service[C]) dedupe() int {
	seen := make(map[uint64]bool, len(s.queue))
	kept := s.queue[:0]
	removed := 0
	for _, j := range s.queue {
		id := j.Customer.CustomerID()
		if seen[id] {
			removed++
			continue
		}
		seen[id] = true
		kept = append(kept, j)
	}
	clear(s.queue[len(kept):])
	s.queue = kept
	return removed
}
