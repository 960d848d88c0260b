// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tracklink

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng logs the seed so a failing run can be reproduced
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomPayload builds a payload map with 0-5 integer or boolean fields
func randomPayload(rng *rand.Rand) map[int]interface{} {
	n := rng.Intn(6)
	if n == 0 {
		return nil
	}
	m := make(map[int]interface{}, n)
	for i := 0; i < n; i++ {
		key := rng.Intn(8)
		switch rng.Intn(3) {
		case 0:
			m[key] = uint64(rng.Intn(1 << 16))
		case 1:
			m[key] = -int64(rng.Intn(1<<16) + 1)
		case 2:
			m[key] = rng.Intn(2) == 1
		}
	}
	return m
}

// validFrame returns a random well-formed frame and its message type
func validFrame(t *testing.T, rng *rand.Rand) ([]byte, uint8) {
	msgType := uint8(rng.Intn(256))
	frame, err := EncodeFrame(msgType, randomPayload(rng))
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	return frame, msgType
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		data := make([]byte, rng.Intn(512)+1)
		rng.Read(data)

		for _, b := range data {
			if p, err := d.DecodeByte(b); err == nil && p != nil {
				// whatever came through must still be inspectable
				_ = FormatPacket(p)
				_ = ValidatePacket(p)
			}
		}
	}
}

// TestFuzzDecoder_RandomFrames round trips random well-formed frames
func TestFuzzDecoder_RandomFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		frame, msgType := validFrame(t, rng)

		packet, err := feed(NewDecoder(), frame)
		if err != nil {
			t.Errorf("Round %d: unexpected decode error: %v", i, err)
			continue
		}
		if packet == nil {
			t.Errorf("Round %d: expected packet, got nil", i)
			continue
		}
		if packet.Type() != msgType {
			t.Errorf("Round %d: type mismatch: expected 0x%02X, got 0x%02X", i, msgType, packet.Type())
		}
		if err := packet.ParseError(); err != nil {
			t.Errorf("Round %d: parse error: %v", i, err)
		}
	}
}

// TestFuzzDecoder_CorruptedFrames flips one body byte. The decoder must
// never hand out a packet whose CRC does not match.
func TestFuzzDecoder_CorruptedFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		frame, _ := validFrame(t, rng)
		idx := rng.Intn(len(frame)-2) + 1
		frame[idx] ^= byte(rng.Intn(255) + 1)

		d := NewDecoder()
		for _, b := range frame {
			p, err := d.DecodeByte(b)
			if err != nil || p == nil {
				continue
			}
			body := append([]byte{p.Length()}, p.Payload()...)
			if CalculateCRC(body) != p.CRC() {
				t.Errorf("Round %d: packet with bad CRC accepted", i)
			}
		}
	}
}

// TestFuzzDecoder_MissingBytes drops random bytes from valid frames
func TestFuzzDecoder_MissingBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		frame, _ := validFrame(t, rng)
		for j := rng.Intn(5) + 1; j > 0 && len(frame) > 2; j-- {
			idx := rng.Intn(len(frame))
			frame = append(frame[:idx], frame[idx+1:]...)
		}

		d := NewDecoder()
		for _, b := range frame {
			d.DecodeByte(b)
		}
	}
}

// TestFuzzDecoder_RecoversAfterGarbage checks that a valid frame decodes
// after any amount of line noise
func TestFuzzDecoder_RecoversAfterGarbage(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		noise := make([]byte, rng.Intn(64))
		rng.Read(noise)
		for _, b := range noise {
			d.DecodeByte(b)
		}

		frame, msgType := validFrame(t, rng)
		packet, err := feed(d, frame)
		if err != nil {
			t.Errorf("Round %d: unexpected error after noise: %v", i, err)
			continue
		}
		if packet == nil || packet.Type() != msgType {
			t.Errorf("Round %d: expected packet 0x%02X after noise", i, msgType)
		}
	}
}

// ============================================================
// Stuffing Fuzz Tests
// ============================================================

// TestFuzzStuffing_RoundTrip checks stuffing never emits a framing byte
// and is reversible
func TestFuzzStuffing_RoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(256))
		rng.Read(data)

		stuffed := stuffBytes(data)
		for _, b := range stuffed {
			if b == StartByte || b == EndByte {
				t.Fatalf("Round %d: framing byte in stuffed output", i)
			}
		}
		back, err := UnstuffBytes(stuffed)
		if err != nil {
			t.Fatalf("Round %d: UnstuffBytes failed: %v", i, err)
		}
		if string(back) != string(data) {
			t.Fatalf("Round %d: round trip mismatch", i)
		}
	}
}

// ============================================================
// Validation Fuzz Tests
// ============================================================

// TestFuzzValidation_RandomPayloads runs the validator over random
// payloads of every known message type
func TestFuzzValidation_RandomPayloads(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	types := make([]uint8, 0, len(messageNames))
	for msgType := range messageNames {
		types = append(types, msgType)
	}

	for i := 0; i < rounds; i++ {
		for _, msgType := range types {
			data, err := cbor.Marshal([]interface{}{uint64(msgType), randomPayload(rng)})
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			p := NewPacket(uint8(len(data)), data, 0)
			_ = ValidatePacket(p)
			_ = FormatPayloadMap(p.Type(), p.PayloadMap())
		}
	}
}
