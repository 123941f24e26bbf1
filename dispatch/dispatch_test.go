package dispatch

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySharedCommands(t *testing.T) {
	assert.Equal(t, Shared, Classify("ls /docs"))
	assert.Equal(t, Shared, Classify("cat /a.txt"))
	assert.Equal(t, Shared, Classify("info"))
}

func TestClassifyExclusiveCommands(t *testing.T) {
	assert.Equal(t, Exclusive, Classify("mkdir /docs"))
	assert.Equal(t, Exclusive, Classify("rm /a.txt"))
	assert.Equal(t, Exclusive, Classify(""))
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "Shared", Shared.String())
	assert.Equal(t, "Exclusive", Exclusive.String())
}

func TestExecuteSyncReturnsFnResult(t *testing.T) {
	d := New(2)
	defer d.Shutdown()

	code, err := d.ExecuteSync("ls /", func() (int, error) { return 0, nil })
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	wantErr := errors.New("boom")
	code, err = d.ExecuteSync("rm /a.txt", func() (int, error) { return 1, wantErr })
	assert.Equal(t, 1, code)
	assert.Equal(t, wantErr, err)
}

func TestExecuteAsyncDeliversExactlyOneResult(t *testing.T) {
	d := New(2)
	defer d.Shutdown()

	ch, err := d.ExecuteAsync("cat /a.txt", func() (int, error) { return 0, nil })
	require.NoError(t, err)

	select {
	case res := <-ch:
		assert.Equal(t, 0, res.Code)
		assert.NoError(t, res.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched command")
	}
}

func TestSharedCommandsRunConcurrently(t *testing.T) {
	d := New(4)
	defer d.Shutdown()

	var inFlight int32
	var maxSeen int32
	release := make(chan struct{})

	task := func() (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		return 0, nil
	}

	var chans []<-chan Result
	for i := 0; i < 3; i++ {
		ch, err := d.ExecuteAsync("ls /", task)
		require.NoError(t, err)
		chans = append(chans, ch)
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	for _, ch := range chans {
		<-ch
	}
	assert.True(t, atomic.LoadInt32(&maxSeen) > 1, "shared commands should overlap under the reader lock")
}

func TestExclusiveCommandsSerialize(t *testing.T) {
	d := New(4)
	defer d.Shutdown()

	var inFlight int32
	var maxSeen int32
	task := func() (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 0, nil
	}

	var chans []<-chan Result
	for i := 0; i < 3; i++ {
		ch, err := d.ExecuteAsync("rm /a.txt", task)
		require.NoError(t, err)
		chans = append(chans, ch)
	}
	for _, ch := range chans {
		<-ch
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen), "exclusive commands must not overlap")
}

func TestShutdownRejectsFurtherEnqueues(t *testing.T) {
	d := New(1)
	d.Shutdown()

	_, err := d.ExecuteAsync("ls /", func() (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestThreadCountReportsPoolSize(t *testing.T) {
	d := New(5)
	defer d.Shutdown()
	assert.Equal(t, 5, d.ThreadCount())
}
