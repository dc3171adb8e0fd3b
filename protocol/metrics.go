// Copyright 2026 The Framelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// MetricsPayload is the periodic telemetry sample published on the
// metrics channel and merged into the session's counters. Best-effort
// delivery: a dropped sample is replaced by the next one.
type MetricsPayload struct {
	FPS           float64 `json:"fps"`
	LatencyMS     uint32  `json:"latency"`
	BitrateKbps   uint32  `json:"bitrate"`
	PacketLoss    float64 `json:"packetLoss"`
	Jitter        float64 `json:"jitter"`
	FrameDrops    uint32  `json:"frameDrops"`
	BytesSent     uint64  `json:"bytesSent"`
	BytesReceived uint64  `json:"bytesReceived"`
	CPUPercent    float64 `json:"cpuUsage"`
	MemoryUsedMB  uint64  `json:"memoryUsage"`
}
