// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry reads local host metrics folded into the session
// stats stream.
package telemetry

import (
	"log/slog"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sampler reads CPU and memory usage of the local host. Readings are
// best-effort: a failed read logs at debug and reports zero rather
// than failing the stats tick.
type Sampler struct {
	logger *slog.Logger
}

func NewSampler(logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{logger: logger.With("component", "telemetry")}
}

// Sample returns the CPU load percentage since the previous call and
// the used physical memory in megabytes.
func (s *Sampler) Sample() (cpuPercent float64, memoryUsedMB uint64) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		s.logger.Debug("cpu sample failed", "error", err)
	} else if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	virtualMemory, err := mem.VirtualMemory()
	if err != nil {
		s.logger.Debug("memory sample failed", "error", err)
	} else {
		memoryUsedMB = virtualMemory.Used / (1024 * 1024)
	}
	return cpuPercent, memoryUsedMB
}
