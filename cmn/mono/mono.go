// Package mono provides a monotonic nanosecond clock shared by the
// scheduler's timed-task heap and the housekeeper so that wall-clock
// adjustments never perturb reschedule math.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
//go:build !mono

package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since process start, monotonic
// for the lifetime of the process (time.Since is monotonic-safe on all
// platforms gofilt targets; the build-tagged fast_nanotime.go variant
// below is used instead when built with -tags mono).
func NanoTime() int64 { return int64(time.Since(start)) }

// Since is a small convenience wrapper over NanoTime for elapsed-time math.
func Since(t int64) time.Duration { return time.Duration(NanoTime() - t) }
