package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingDeleter struct {
	calls atomic.Int32
	n     int
	err   error
}

func (d *countingDeleter) DeleteExpired(ctx context.Context) (int, error) {
	d.calls.Add(1)
	return d.n, d.err
}

func TestSessionSweeper_Sweep(t *testing.T) {
	d := &countingDeleter{n: 3}
	s := NewSessionSweeper(context.Background(), d, time.Hour)
	defer s.Stop()

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.EqualValues(t, 1, d.calls.Load())
}

func TestSessionSweeper_SweepError(t *testing.T) {
	d := &countingDeleter{err: errors.New("database down")}
	s := NewSessionSweeper(context.Background(), d, time.Hour)
	defer s.Stop()

	_, err := s.Sweep(context.Background())
	require.EqualError(t, err, "database down")
}

func TestSessionSweeper_runsOnInterval(t *testing.T) {
	d := &countingDeleter{}
	s := NewSessionSweeper(context.Background(), d, 10*time.Millisecond)

	require.Eventually(t, func() bool { return d.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	stopped := d.calls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, stopped, d.calls.Load())
}
