/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-scope/internal/audio"
	"github.com/loqalabs/loqa-scope/internal/config"
)

func testConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	fs := flag.NewFlagSet("loqa-scope", flag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	cfg, err := config.Parse(fs, args)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRun_StreamsUntilDisplayReturns(t *testing.T) {
	backend := audio.NewMockAudioBackend()
	cfg := testConfig(t, "-channels", "2", "-block-size", "64", "-sample-rate", "48000", "-speed", "0.03")

	var sawBlocks bool
	err := run(context.Background(), cfg, backend, func(ctx context.Context, stream *audio.SineStream) error {
		assert.True(t, stream.IsActive())
		assert.Equal(t, 128, stream.BlockLen())
		assert.Equal(t, 0.03, stream.Speed())
		assert.Equal(t, 1, backend.StreamCount())

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if len(stream.Snapshot()) == 128 {
				sawBlocks = true
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		return nil
	})

	require.NoError(t, err)
	assert.True(t, sawBlocks, "the display should see full blocks")
	assert.Equal(t, 0, backend.StreamCount(), "stream closed on the way out")
}

func TestRun_DisplayErrorIsReturned(t *testing.T) {
	backend := audio.NewMockAudioBackend()
	cfg := testConfig(t)

	displayErr := fmt.Errorf("window mismatch")
	err := run(context.Background(), cfg, backend, func(context.Context, *audio.SineStream) error {
		return displayErr
	})

	assert.True(t, errors.Is(err, displayErr))
	assert.Equal(t, 0, backend.StreamCount())
}

func TestRun_StartupFailures(t *testing.T) {
	neverCalled := func(t *testing.T) displayFunc {
		return func(context.Context, *audio.SineStream) error {
			t.Error("display must not run when startup fails")
			return nil
		}
	}

	t.Run("backend_init_failure", func(t *testing.T) {
		backend := audio.NewMockAudioBackend()
		backend.SetInitError(fmt.Errorf("no audio server"))

		err := run(context.Background(), testConfig(t), backend, neverCalled(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize audio")
	})

	t.Run("no_output_device", func(t *testing.T) {
		backend := audio.NewMockAudioBackend()
		backend.SetNoOutputDevice(true)

		err := run(context.Background(), testConfig(t), backend, neverCalled(t))
		assert.True(t, errors.Is(err, audio.ErrNoOutputDevice))
	})

	t.Run("too_many_channels", func(t *testing.T) {
		backend := audio.NewMockAudioBackend()

		err := run(context.Background(), testConfig(t, "-channels", "8"), backend, neverCalled(t))
		assert.True(t, errors.Is(err, audio.ErrUnsupportedChannels))
	})

	t.Run("stream_creation_failure", func(t *testing.T) {
		backend := audio.NewMockAudioBackend()
		backend.SetCreateStreamError(fmt.Errorf("device busy"))

		err := run(context.Background(), testConfig(t), backend, neverCalled(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "device busy")
	})
}

func TestRun_NATSUnavailable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping NATS retry test in short mode")
	}

	backend := audio.NewMockAudioBackend()
	cfg := testConfig(t, "-nats", "nats://127.0.0.1:1")

	err := run(context.Background(), cfg, backend, func(context.Context, *audio.SineStream) error {
		t.Error("display must not run without NATS")
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize NATS speed subscriber")
	assert.Equal(t, 0, backend.StreamCount())
}

func TestShowHeadless_StopsOnCancel(t *testing.T) {
	backend := audio.NewMockAudioBackend()
	cfg := testConfig(t, "-headless", "-status-interval", "10ms", "-block-size", "32")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := run(ctx, cfg, backend, showHeadless(cfg.StatusInterval))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRun_OscillatorStaysInRange(t *testing.T) {
	backend := audio.NewMockAudioBackend()
	cfg := testConfig(t, "-block-size", "16", "-sample-rate", "16000", "-speed", "3.1")

	err := run(context.Background(), cfg, backend, func(ctx context.Context, stream *audio.SineStream) error {
		for i := 0; i < 20; i++ {
			stream.SetSpeed(float64(i%5) - 2)
			time.Sleep(2 * time.Millisecond)
		}
		a := stream.Oscillator().Angle()
		assert.False(t, math.IsNaN(a))
		assert.GreaterOrEqual(t, a, 0.0)
		assert.Less(t, a, 2*math.Pi)
		return nil
	})
	require.NoError(t, err)
}
