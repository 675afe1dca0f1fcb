package jobs

import (
	"fmt"
	"time"
)

// Subscribe returns a channel of events for one job. The current state is
// delivered first. The channel closes after the terminal event, when the job is
// deleted, or when cancel is called. A slow reader loses intermediate events
// but always receives the terminal one.
func (s *Store) Subscribe(id string) (<-chan Event, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	sub := &subscriber{ch: make(chan Event, s.subBuffer)}
	sub.ch <- eventFor(job, s.now())
	if job.Status.Terminal() {
		sub.closed = true
		close(sub.ch)
		return sub.ch, func() {}, nil
	}
	s.subs[id] = append(s.subs[id], sub)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.removeSubscriberLocked(id, sub)
	}
	return sub.ch, cancel, nil
}

func eventFor(job *Job, at time.Time) Event {
	return Event{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  job.Message,
		Error:    job.ErrorMessage,
		At:       at,
	}
}

// publishLocked fans an event out without blocking. When a buffer is full the
// oldest pending event is discarded to make room.
func (s *Store) publishLocked(job *Job, at time.Time) {
	subs := s.subs[job.ID]
	if len(subs) == 0 {
		return
	}
	evt := eventFor(job, at)
	for _, sub := range subs {
		deliver(sub.ch, evt)
	}
	if job.Status.Terminal() {
		s.closeSubscribersLocked(job.ID)
	}
}

func deliver(ch chan Event, evt Event) {
	for {
		select {
		case ch <- evt:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (s *Store) closeSubscribersLocked(id string) {
	for _, sub := range s.subs[id] {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	delete(s.subs, id)
}

func (s *Store) removeSubscriberLocked(id string, target *subscriber) {
	subs := s.subs[id]
	for i, sub := range subs {
		if sub != target {
			continue
		}
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		s.subs[id] = append(subs[:i], subs[i+1:]...)
		if len(s.subs[id]) == 0 {
			delete(s.subs, id)
		}
		return
	}
}
