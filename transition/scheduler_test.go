package transition

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingScanner struct {
	scans atomic.Int32
}

func (s *countingScanner) Scan(context.Context) ScanResult {
	s.scans.Add(1)
	return ScanResult{}
}

func TestScheduler_TriggerNow(t *testing.T) {
	scanner := &countingScanner{}
	s := NewScheduler(scanner)

	s.TriggerNow(context.Background())
	s.TriggerNow(context.Background())
	assert.Equal(t, int32(2), scanner.scans.Load())
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	scanner := &countingScanner{}
	s := NewScheduler(scanner, WithInterval(time.Second))

	s.Start()
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return scanner.scans.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := NewScheduler(&countingScanner{})
	s.Stop()
}

func TestScheduler_DrivesDetector(t *testing.T) {
	w := newWorld(t, "08:31")
	s := NewScheduler(w.detector)

	result := s.TriggerNow(context.Background())
	assert.Len(t, result.Created, 1)
	assert.True(t, w.away.IsActive("milo"))
}
