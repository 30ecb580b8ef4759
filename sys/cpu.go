// Package sys provides methods to read system information (CPU count,
// GOMAXPROCS).
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"os"
	"runtime"

	"github.com/gofilt/gofilt/cmn/nlog"
)

const maxProcsEnvVar = "GOMAXPROCS"

// NumCPU returns runtime.NumCPU(). The teacher's cgroup-quota-aware
// container detection (cpu_linux.go's /proc/self/cgroup scan) is out of
// scope here: gofilt's scheduler sizing only needs a reasonable worker
// count, not exact container CPU accounting.
func NumCPU() int { return runtime.NumCPU() }

// SetMaxProcs sets GOMAXPROCS = NumCPU unless already overridden via Go environment.
func SetMaxProcs() {
	if val, exists := os.LookupEnv(maxProcsEnvVar); exists {
		nlog.Warningf("GOMAXPROCS is set via Go environment %q: %q", maxProcsEnvVar, val)
		return
	}
	maxprocs := runtime.GOMAXPROCS(0)
	ncpu := NumCPU()
	if maxprocs > ncpu {
		nlog.Warningf("Reducing GOMAXPROCS (%d) to %d (num CPUs)", maxprocs, ncpu)
		runtime.GOMAXPROCS(ncpu)
	}
}
