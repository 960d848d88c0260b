// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tracklink

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of the link statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	TotalPackets   uint64
	ValidPackets   uint64
	CRCErrors      uint64
	DecodeErrors   uint64
	InvalidPackets uint64
	Acks           uint64
	Naks           uint64
	BoardErrors    uint64
	Timeouts       uint64

	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// Statistics tracks link traffic and error rates. It is safe for concurrent
// use by the reader goroutine and the UI.
type Statistics struct {
	mu sync.Mutex
	Counters
}

// NewStatistics creates a statistics tracker starting now
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{Counters: Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}}
}

// Update accounts for one decoded packet or decode failure
func (s *Statistics) Update(packet *Packet, decodeErr error, validationErrors []ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrCRCMismatch) {
			s.CRCErrors++
		} else {
			s.DecodeErrors++
		}
		return
	}

	if len(validationErrors) > 0 {
		s.InvalidPackets++
		return
	}
	s.ValidPackets++

	switch {
	case packet.Type() == MsgAckResult:
		if ack, _ := packet.Bool(KeyAck); ack {
			s.Acks++
		} else {
			s.Naks++
		}
	case packet.IsError():
		s.BoardErrors++
	}
}

// RecordTimeout counts a request that got no reply
func (s *Statistics) RecordTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Timeouts++
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return s.Counters
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.CRCErrors+s.DecodeErrors+s.InvalidPackets+s.Timeouts) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	percent := func(n uint64) float64 {
		if snap.TotalPackets == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(snap.TotalPackets)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", time.Since(snap.StartTime).Seconds())
	result += fmt.Sprintf("Total Packets:   %8d\n", snap.TotalPackets)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", snap.ValidPackets, percent(snap.ValidPackets))
	if snap.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", snap.CRCErrors, percent(snap.CRCErrors))
	}
	if snap.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", snap.DecodeErrors, percent(snap.DecodeErrors))
	}
	if snap.InvalidPackets > 0 {
		result += fmt.Sprintf("Invalid Packets: %8d (%.1f%%)\n", snap.InvalidPackets, percent(snap.InvalidPackets))
	}
	if snap.Acks+snap.Naks > 0 {
		result += fmt.Sprintf("Acks / Naks:     %8d / %d\n", snap.Acks, snap.Naks)
	}
	if snap.BoardErrors > 0 {
		result += fmt.Sprintf("Board Errors:    %8d\n", snap.BoardErrors)
	}
	if snap.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", snap.Timeouts)
	}
	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", snap.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"
	return result
}

// Reset zeroes every counter
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Counters = Counters{StartTime: now, LastUpdateTime: now}
}
