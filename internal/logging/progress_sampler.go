package logging

import (
	"math"
	"strings"
)

// ProgressSampler thins a stream of progress updates down to the ones worth
// logging: every step-sized milestone and every change of message.
type ProgressSampler struct {
	step    float64
	next    float64
	message string
}

// NewProgressSampler returns a sampler with the given milestone step in
// percent. Non-positive steps fall back to 10.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 10
	}
	return &ProgressSampler{step: step}
}

// ShouldLog reports whether the update reaches a new milestone or carries a
// new message. A negative percent is treated as unknown.
func (s *ProgressSampler) ShouldLog(percent float64, message string) bool {
	if s == nil {
		return true
	}
	changed := s.observeMessage(message)
	crossed := s.observePercent(percent)
	return changed || crossed
}

func (s *ProgressSampler) observeMessage(message string) bool {
	message = strings.TrimSpace(message)
	if message == "" || message == s.message {
		return false
	}
	s.message = message
	return true
}

func (s *ProgressSampler) observePercent(percent float64) bool {
	if percent < 0 || math.IsNaN(percent) {
		return false
	}
	percent = min(percent, 100)
	if percent < s.next {
		return false
	}
	s.next = (math.Floor(percent/s.step) + 1) * s.step
	return true
}

// Reset forgets the last milestone and message.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.next = 0
	s.message = ""
}
