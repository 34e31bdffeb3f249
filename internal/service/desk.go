package service

import (
	"maps"
	"slices"
)

// Completion is one row of the finished-jobs log.
type Completion struct {
	Step     int    `db:"step" json:"step"`
	Job      string `db:"job" json:"job"`
	Desk     string `db:"desk" json:"desk"`
	Customer uint64 `db:"customer" json:"customer"`
	Service  string `db:"service" json:"service"`
}

// QueueLength is one row of the queue-length log.
type QueueLength struct {
	Step    int    `db:"step" json:"step"`
	Desk    string `db:"desk" json:"desk"`
	Service string `db:"service" json:"service"`
	Length  int    `db:"length" json:"length"`
}

// Desk is the shared work capacity of one intermediary.
type Desk[C Customer] struct {
	Name          string
	MaxConcurrent int
	// CompletionLead shifts which active slot is closed on a given tick.
	// With a lead of 1 a job placed at now+1 finishes in the same pass.
	CompletionLead int

	Services  []*Service[C]
	Active    map[int][]*Job[C] // finish tick → jobs
	Completed map[int][]*Job[C] // tick → jobs finished on it

	completions []Completion
	lengths     []QueueLength
}

// NewDesk creates an empty desk.
func NewDesk[C Customer](name string, maxConcurrent, lead int) *Desk[C] {
	return &Desk[C]{
		Name:           name,
		MaxConcurrent:  maxConcurrent,
		CompletionLead: lead,
		Active:         make(map[int][]*Job[C]),
		Completed:      make(map[int][]*Job[C]),
	}
}

// AddService registers a new service on the desk and returns it.
func (d *Desk[C]) AddService(name string, duration int, onComplete func(*Job[C]) error) *Service[C] {
	s := &Service[C]{Name: name, Duration: duration, OnComplete: onComplete, desk: d}
	d.Services = append(d.Services, s)
	return s
}

// ActiveCount is the number of jobs in progress.
func (d *Desk[C]) ActiveCount() int {
	n := 0
	for _, jobs := range d.Active {
		n += len(jobs)
	}
	return n
}

// Queued is the number of jobs waiting across all services.
func (d *Desk[C]) Queued() int {
	n := 0
	for _, s := range d.Services {
		n += s.Len()
	}
	return n
}

// Work runs one pass at tick now: for each service in order it starts as
// many queued jobs as capacity allows, then closes the slot due now.
func (d *Desk[C]) Work(now int) error {
	for _, s := range d.Services {
		d.begin(now, s)
		if err := d.complete(now); err != nil {
			return err
		}
	}
	return nil
}

func (d *Desk[C]) begin(now int, s *Service[C]) {
	free := d.MaxConcurrent - d.ActiveCount()
	for range max(free, 0) {
		if s.Len() == 0 {
			return
		}
		j := s.pop()
		end := now + j.Duration
		d.Active[end] = append(d.Active[end], j)
	}
}

func (d *Desk[C]) complete(now int) error {
	due := now + d.CompletionLead
	jobs, ok := d.Active[due]
	if !ok {
		return nil
	}
	delete(d.Active, due)
	for i, j := range jobs {
		d.Completed[now] = append(d.Completed[now], j)
		d.completions = append(d.completions, Completion{
			Step:     now,
			Job:      j.ID,
			Desk:     d.Name,
			Customer: j.Customer.CustomerID(),
			Service:  j.Service.Name,
		})
		if j.Service.OnComplete == nil {
			continue
		}
		if err := j.Service.OnComplete(j); err != nil {
			// The rest of the slot stays active for the next pass.
			if rest := jobs[i+1:]; len(rest) > 0 {
				d.Active[due] = slices.Clone(rest)
			}
			return err
		}
	}
	return nil
}

// RecordQueues appends the current queue lengths to the log and drops
// duplicate customers from every queue. It returns how many were dropped.
func (d *Desk[C]) RecordQueues(step int) int {
	removed := 0
	for _, s := range d.Services {
		d.lengths = append(d.lengths, QueueLength{Step: step, Desk: d.Name, Service: s.Name, Length: s.Len()})
		removed += s.dedupe()
	}
	return removed
}

// EstimateWait guesses how many ticks a new job on the first service would
// wait: until the last active slot frees plus the queued durations.
func (d *Desk[C]) EstimateWait(now int) int {
	wait := 0
	if len(d.Active) > 0 {
		wait = max(slices.Max(slices.Collect(maps.Keys(d.Active)))-now, 0)
	}
	if len(d.Services) > 0 {
		for _, j := range d.Services[0].queue {
			wait += j.Duration
		}
	}
	return wait
}

// Serves reports whether c has a job queued or active on this desk.
func (d *Desk[C]) Serves(c C) bool {
	id := c.CustomerID()
	for _, s := range d.Services {
		if s.Has(c) {
			return true
		}
	}
	for _, jobs := range d.Active {
		for _, j := range jobs {
			if j.Customer.CustomerID() == id {
				return true
			}
		}
	}
	return false
}

// DrainLogs returns and clears the completion and queue-length rows
// gathered since the previous call.
func (d *Desk[C]) DrainLogs() ([]Completion, []QueueLength) {
	c, q := d.completions, d.lengths
	d.completions, d.lengths = nil, nil
	return c, q
}
