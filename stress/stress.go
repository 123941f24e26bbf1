// Package stress implements the long-duration multi-worker write/read/
// verify loop with periodic metrics reporting, driving an fsys.FileSystem
// façade exactly as an external CLI's "stress" command would.
//
// Grounded on the original C++ StressTester (original_source/src/
// threading/stress_tester.cpp) for the worker/monitor loop shapes, the
// per-worker striding over file indices, and the stable "[Stress] ..."
// stdout contract in spec §6; on original_source/src/utils/monitoring.cpp
// for the metrics line's field set; on the teacher's lockmap for the
// mutex+cond pattern reused by the worker pool one layer up in dispatch;
// and on golang.org/x/sys/unix (via metrics.go) for host memory sampling.
package stress

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arota-fs/simfs/common"
	"github.com/arota-fs/simfs/config"
	"github.com/arota-fs/simfs/diag"
	"github.com/arota-fs/simfs/fserrors"
	"github.com/arota-fs/simfs/fsys"
)

var log = diag.WithComponent("stress")

const backoff = 5 * time.Millisecond

// Harness drives config.StressConfig's write/read/verify workload against
// a mounted façade.
type Harness struct {
	fs *fsys.FileSystem

	opsTotal    atomic.Uint64
	errorsTotal atomic.Uint64
}

// New returns a harness bound to an already-mounted façade.
func New(fs *fsys.FileSystem) *Harness {
	return &Harness{fs: fs}
}

// Run executes the configured workload to completion (or until ctx is
// canceled) and reports true iff no operation failed.
func (h *Harness) Run(ctx context.Context, cfg config.StressConfig) (bool, error) {
	bucketCount := cfg.BucketCount
	if bucketCount <= 0 {
		bucketCount = cfg.ThreadCount
	}
	if bucketCount > cfg.FileCount {
		bucketCount = cfg.FileCount
	}
	if bucketCount <= 0 {
		bucketCount = 1
	}

	fmt.Printf("[Stress] Starting | threads=%d files=%d write_size=%d duration=%s workspace=%s\n",
		cfg.ThreadCount, cfg.FileCount, cfg.WriteSize, cfg.Duration, cfg.WorkspacePath)

	if err := h.prepareWorkspace(cfg, bucketCount); err != nil {
		return false, err
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var stopped atomic.Bool
	go func() {
		<-runCtx.Done()
		stopped.Store(true)
	}()

	var workers sync.WaitGroup
	for w := 0; w < cfg.ThreadCount; w++ {
		workers.Add(1)
		go func(w int) {
			defer workers.Done()
			h.worker(w, cfg, bucketCount, &stopped)
		}(w)
	}

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		h.monitor(runCtx, cfg)
	}()

	workers.Wait()
	stopped.Store(true)
	<-monitorDone

	if cfg.CleanupAfter {
		if err := h.cleanupWorkspace(cfg, bucketCount); err != nil {
			log.Warn("cleanup failed", "err", err)
		}
	}

	success := h.errorsTotal.Load() == 0
	if success {
		fmt.Println("[Stress] Test finished successfully")
	} else {
		fmt.Println("[Stress] Test finished with errors")
	}
	return success, nil
}

func bucketDir(cfg config.StressConfig, bucket int) string {
	return fmt.Sprintf("%s/bucket_%03d", cfg.WorkspacePath, bucket)
}

func filePath(cfg config.StressConfig, i, bucketCount int) string {
	bucket := i % bucketCount
	return fmt.Sprintf("%s/file_%03d.dat", bucketDir(cfg, bucket), i)
}

func (h *Harness) prepareWorkspace(cfg config.StressConfig, bucketCount int) error {
	if err := h.fs.CreateDirectory(cfg.WorkspacePath); err != nil && !isAlreadyExists(err) {
		return err
	}
	for b := 0; b < bucketCount; b++ {
		if err := h.fs.CreateDirectory(bucketDir(cfg, b)); err != nil && !isAlreadyExists(err) {
			return err
		}
	}
	for i := 0; i < cfg.FileCount; i++ {
		path := filePath(cfg, i, bucketCount)
		if err := h.fs.CreateFile(path, 0); err != nil && !isAlreadyExists(err) {
			return err
		}
	}
	return nil
}

func (h *Harness) cleanupWorkspace(cfg config.StressConfig, bucketCount int) error {
	for i := 0; i < cfg.FileCount; i++ {
		h.fs.DeleteFile(filePath(cfg, i, bucketCount))
	}
	for b := 0; b < bucketCount; b++ {
		h.fs.RemoveDirectory(bucketDir(cfg, b))
	}
	return h.fs.RemoveDirectory(cfg.WorkspacePath)
}

func isAlreadyExists(err error) bool {
	return fserrors.Is(err, fserrors.FileAlreadyExists)
}

// worker drives the write/read/verify cycle over its assigned file
// indices {w, w+t, w+2t, ...}, repeating passes until stopped.
func (h *Harness) worker(w int, cfg config.StressConfig, bucketCount int, stopped *atomic.Bool) {
	for k := 0; !stopped.Load(); k++ {
		for i := w; i < cfg.FileCount; i += cfg.ThreadCount {
			if stopped.Load() {
				return
			}
			h.cycle(w, k, i, cfg, bucketCount)
		}
	}
}

func (h *Harness) cycle(w, k, i int, cfg config.StressConfig, bucketCount int) {
	path := filePath(cfg, i, bucketCount)

	exists, err := h.fs.FileExists(path)
	if err != nil || !exists {
		if err := h.fs.CreateFile(path, 0); err != nil && !isAlreadyExists(err) {
			h.errorsTotal.Add(1)
			time.Sleep(backoff)
			return
		}
	}

	fill := byte('A' + ((w + k) % 26))
	writeBuf := bytes.Repeat([]byte{fill}, cfg.WriteSize)

	if h.writeFile(path, writeBuf) {
		h.opsTotal.Add(1)
	} else {
		h.errorsTotal.Add(1)
		time.Sleep(backoff)
		return
	}

	readBuf := make([]byte, cfg.WriteSize)
	n, ok := h.readFile(path, readBuf)
	if !ok {
		h.errorsTotal.Add(1)
		time.Sleep(backoff)
		return
	}
	if bytes.Equal(writeBuf[:n], readBuf[:n]) {
		h.opsTotal.Add(1)
	} else {
		h.errorsTotal.Add(1)
		time.Sleep(backoff)
	}
}

func (h *Harness) writeFile(path string, buf []byte) bool {
	fd, err := h.fs.OpenFile(path, common.OpenWrite)
	if err != nil {
		return false
	}
	defer h.fs.CloseFile(fd)
	if err := h.fs.SeekFile(fd, 0); err != nil {
		return false
	}
	_, err = h.fs.WriteFile(fd, buf)
	return err == nil
}

func (h *Harness) readFile(path string, buf []byte) (int, bool) {
	fd, err := h.fs.OpenFile(path, common.OpenRead)
	if err != nil {
		return 0, false
	}
	defer h.fs.CloseFile(fd)
	n, err := h.fs.ReadFile(fd, buf)
	if err != nil {
		return 0, false
	}
	return n, true
}

// monitor wakes every cfg.MonitorInterval and prints one "[Stress]
// Metrics" line with cumulative and windowed throughput plus host CPU and
// memory, until runCtx is done.
func (h *Harness) monitor(runCtx context.Context, cfg config.StressConfig) {
	start := time.Now()
	ticker := time.NewTicker(cfg.MonitorInterval)
	defer ticker.Stop()

	var lastOps, lastErrors uint64
	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			opsTotal := h.opsTotal.Load()
			errorsTotal := h.errorsTotal.Load()
			opsDelta := opsTotal - lastOps
			errorsDelta := errorsTotal - lastErrors
			lastOps, lastErrors = opsTotal, errorsTotal

			elapsed := time.Since(start).Seconds()
			window := cfg.MonitorInterval.Seconds()
			instRate := float64(opsDelta) / window
			avgRate := float64(opsTotal) / elapsed

			mem := readMemory()
			cpu := readCPUPercent(100 * time.Millisecond)

			fmt.Printf(
				"[Stress] Metrics | elapsed_s: %.2f | ops_total: %d | ops_delta: %d | inst_ops_rate: %.2f ops/s | avg_ops_rate: %.2f ops/s | errors_total: %d | errors_delta: %d | cfg_threads: %d | cfg_files: %d | write_size_bytes: %d | cpu: %.2f%% | Memory(MB): total=%.2f, used=%.2f, free=%.2f, available=%.2f\n",
				elapsed, opsTotal, opsDelta, instRate, avgRate, errorsTotal, errorsDelta,
				cfg.ThreadCount, cfg.FileCount, cfg.WriteSize,
				cpu, mem.TotalMB, mem.UsedMB, mem.FreeMB, mem.AvailableMB,
			)
		}
	}
}
