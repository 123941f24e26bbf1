package stress

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// hostMemory is a best-effort host memory snapshot in megabytes.
type hostMemory struct {
	TotalMB     float64
	UsedMB      float64
	FreeMB      float64
	AvailableMB float64
}

// readMemory uses unix.Sysinfo, the same syscall family the teacher's
// disk layer uses for host I/O (golang.org/x/sys/unix), to report total
// and free RAM. "Available" has no exact Sysinfo equivalent and is
// reported equal to free, which undercounts reclaimable cache.
func readMemory() hostMemory {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return hostMemory{}
	}
	unit := float64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	const mb = 1024 * 1024
	total := float64(info.Totalram) * unit / mb
	free := float64(info.Freeram) * unit / mb
	return hostMemory{
		TotalMB:     total,
		UsedMB:      total - free,
		FreeMB:      free,
		AvailableMB: free,
	}
}

type cpuSample struct {
	idle  uint64
	total uint64
}

// readCPUSample parses the aggregate "cpu" line of /proc/stat. It returns
// ok=false on any non-Linux host or unreadable /proc/stat.
func readCPUSample() (cpuSample, bool) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuSample{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return cpuSample{}, false
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuSample{}, false
	}

	var sample cpuSample
	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			continue
		}
		sample.total += v
		if i == 3 { // idle is the 4th value
			sample.idle = v
		}
	}
	return sample, true
}

// readCPUPercent takes two /proc/stat samples separated by window and
// returns the fraction of non-idle time between them, as a percentage.
// Returns 0 if /proc/stat is unavailable.
func readCPUPercent(window time.Duration) float64 {
	first, ok := readCPUSample()
	if !ok {
		return 0
	}
	time.Sleep(window)
	second, ok := readCPUSample()
	if !ok {
		return 0
	}

	totalDelta := second.total - first.total
	idleDelta := second.idle - first.idle
	if totalDelta == 0 {
		return 0
	}
	return 100 * (1 - float64(idleDelta)/float64(totalDelta))
}
