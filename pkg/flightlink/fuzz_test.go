// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flightlink

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
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

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomFrame(rng *rand.Rand) (CommandID, []byte) {
	id := CommandID(rng.Intn(CommandCount))
	body := make([]byte, BodyLen(id))
	rng.Read(body)
	return id, AppendFrame(nil, id, body)
}

// feedChunked feeds data in random chunks up to maxChunk bytes and records
// every dispatched identifier
func feedChunked(m *Manager, rng *rand.Rand, data []byte, maxChunk int) []CommandID {
	var ids []CommandID
	for len(data) > 0 {
		n := rng.Intn(maxChunk) + 1
		if n > len(data) {
			n = len(data)
		}
		_ = m.Receive(data[:n])
		data = data[n:]
		ids = append(ids, processAll(m)...)
	}
	return ids
}

// ============================================================
// Reassembler Fuzz Tests
// ============================================================

// TestFuzzManager_RandomBytes feeds random bytes and verifies nothing panics
// and the buffer never reports more than it can hold
func TestFuzzManager_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		m := newTestManager(t, WithSink(&bytes.Buffer{}))

		length := rng.Intn(512) + 1
		data := make([]byte, length)
		rng.Read(data)

		feedChunked(m, rng, data, RingCapacity+8)
		if m.Buffered() > RingCapacity {
			t.Fatalf("round %d: buffered %d exceeds capacity", i, m.Buffered())
		}
	}
}

// TestFuzzManager_FramesInNoise embeds valid frames between noise bytes that
// never contain the start byte; every frame must be dispatched in order.
func TestFuzzManager_FramesInNoise(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		m := newTestManager(t, WithSink(&bytes.Buffer{}))

		var stream []byte
		var expected []CommandID
		for f := rng.Intn(8) + 1; f > 0; f-- {
			for n := rng.Intn(6); n > 0; n-- {
				b := byte(rng.Intn(256))
				if b == StartByte {
					b = 0
				}
				stream = append(stream, b)
			}
			id, frame := randomFrame(rng)
			stream = append(stream, frame...)
			expected = append(expected, id)
		}

		got := feedChunked(m, rng, stream, MaxFrameLen)
		if len(got) != len(expected) {
			t.Fatalf("round %d: expected %v, got %v", i, expected, got)
		}
		for j := range expected {
			if got[j] != expected[j] {
				t.Fatalf("round %d frame %d: expected %s, got %s",
					i, j, FormatCommand(expected[j]), FormatCommand(got[j]))
			}
		}
	}
}

// TestFuzzManager_ChunkingInvariance compares random chunkings of the same
// noisy stream. As long as the buffer never overflows, the sequence of
// dispatched commands must not depend on how the bytes arrive.
func TestFuzzManager_ChunkingInvariance(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		var stream []byte
		for f := rng.Intn(6) + 1; f > 0; f-- {
			noise := make([]byte, rng.Intn(10))
			rng.Read(noise)
			stream = append(stream, noise...)
			_, frame := randomFrame(rng)
			stream = append(stream, frame...)
		}

		a := newTestManager(t, WithSink(&bytes.Buffer{}))
		b := newTestManager(t, WithSink(&bytes.Buffer{}))
		gotA := feedChunked(a, rng, stream, 1)
		gotB := feedChunked(b, rng, stream, MaxFrameLen)

		if len(gotA) != len(gotB) {
			t.Fatalf("round %d: byte-at-a-time %v, chunked %v", i, gotA, gotB)
		}
		for j := range gotA {
			if gotA[j] != gotB[j] {
				t.Fatalf("round %d frame %d: %s vs %s", i, j, FormatCommand(gotA[j]), FormatCommand(gotB[j]))
			}
		}
	}
}

// ============================================================
// Codec Fuzz Tests
// ============================================================

// TestFuzzPayload_RoundTrip decodes random bodies, re-encodes them inside a
// frame and checks the decoded frame carries the original body bit for bit
func TestFuzzPayload_RoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		id := CommandID(rng.Intn(CommandCount))
		body := make([]byte, BodyLen(id))
		rng.Read(body)

		p, err := DecodeBody(id, body)
		if err != nil {
			t.Fatalf("round %d: %s: %v", i, FormatCommand(id), err)
		}
		gotID, got, err := DecodeFrame(AppendFrame(nil, id, p.AppendBody(nil)))
		if err != nil {
			t.Fatalf("round %d: %s frame: %v", i, FormatCommand(id), err)
		}
		if gotID != id || !bytes.Equal(got, body) {
			t.Fatalf("round %d: %s body % X came back as %s % X", i, FormatCommand(id), body, FormatCommand(gotID), got)
		}
	}
}

// TestFuzzDecodeFrame_RandomBytes verifies DecodeFrame never panics and only
// accepts well-formed frames
func TestFuzzDecodeFrame_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(MaxFrameLen+8))
		rng.Read(data)
		if len(data) > 2 && rng.Intn(2) == 0 {
			data[0] = StartByte
			data[len(data)-1] = StopByte
		}

		id, body, err := DecodeFrame(data)
		if err != nil {
			continue
		}
		if !bytes.Equal(AppendFrame(nil, id, body), data) {
			t.Fatalf("round %d: accepted frame does not re-encode: % X", i, data)
		}
	}
}
