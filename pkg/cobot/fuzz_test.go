// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cobot

import (
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

// getFuzzSeed returns the seed from FUZZ_SEED env var, or one from the current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// ============================================================
// Demultiplexer Fuzz Tests
// ============================================================

// TestFuzzConn_RandomNoise interleaves random noise with valid responses
// and verifies every response is still found
func TestFuzzConn_RandomNoise(t *testing.T) {
	rounds := getFuzzRounds() / 10
	if rounds < 1 {
		rounds = 1
	}
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		d := newFakeDevice()
		c, _ := newTestConn(t, d, Options{})

		// Noise without start bytes so no header can swallow the response
		noise := make([]byte, rng.Intn(64))
		for j := range noise {
			noise[j] = byte(rng.Intn(256))
			if noise[j] == StartByte {
				noise[j] = 0x00
			}
		}
		id := rng.Uint32()
		d.sendRaw(noise)
		d.respond(ResponseDone, id, nil)

		resp, err := c.WaitForResponse(id, time.Second)
		if err != nil || resp == nil {
			t.Fatalf("round %d: WaitForResponse = %v, %v", i, resp, err)
		}
	}
}
