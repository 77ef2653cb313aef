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
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-scope/internal/audio"
	"github.com/loqalabs/loqa-scope/internal/config"
	scopenats "github.com/loqalabs/loqa-scope/internal/nats"
	"github.com/loqalabs/loqa-scope/internal/visualizer"
)

// displayFunc presents a running stream and blocks until the user or ctx ends it
type displayFunc func(ctx context.Context, stream *audio.SineStream) error

func main() {
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("❌ Failed to parse flags: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	log.Printf("🚀 Starting Loqa Scope")
	log.Printf("📋 Scope ID: %s", cfg.ID)
	log.Printf("🔈 Audio backend: %s", cfg.Backend)
	if cfg.NATSURL != "" {
		log.Printf("📡 NATS URL: %s", cfg.NATSURL)
	}

	backend, err := audio.NewBackend(cfg.Backend)
	if err != nil {
		log.Fatalf("❌ Failed to select audio backend: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	display := displayFunc(showVisualizer)
	if cfg.Headless {
		display = showHeadless(cfg.StatusInterval)
	}

	err = run(ctx, cfg, backend, display)
	stop()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Println("👋 Scope stopped")
}

// run owns the audio lifecycle: it opens and starts the stream, attaches the
// optional remote control and hands the stream to display. Everything is torn
// down in reverse order when display returns.
func run(ctx context.Context, cfg *config.Config, backend audio.AudioBackend, display displayFunc) error {
	if err := backend.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer func() {
		if err := backend.Terminate(); err != nil {
			log.Printf("⚠️  Failed to terminate audio backend: %v", err)
		}
	}()

	stream, err := audio.OpenSineStream(backend, cfg.StreamConfig())
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Printf("⚠️  Failed to close audio stream: %v", err)
		}
	}()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.NATSURL != "" {
		conn, err := scopenats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("failed to initialize NATS speed subscriber: %w", err)
		}
		subscriber := scopenats.NewSpeedSubscriberWithConnection(conn, cfg.ID, stream)
		defer subscriber.Close()

		publisher := scopenats.NewStatusPublisher(conn, cfg.ID, stream, cfg.StatusInterval)
		done, err := attachRemoteControl(ctx, subscriber, publisher)
		if err != nil {
			return err
		}
		// The publisher must be gone before the connection closes
		defer func() {
			cancel()
			<-done
		}()
	}

	return display(ctx, stream)
}

// attachRemoteControl starts listening for speed changes and publishing
// status. The returned channel closes once the publisher has stopped.
func attachRemoteControl(ctx context.Context, subscriber *scopenats.SpeedSubscriber, publisher *scopenats.StatusPublisher) (<-chan struct{}, error) {
	if err := subscriber.Start(); err != nil {
		return nil, fmt.Errorf("failed to start NATS speed subscriber: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		publisher.Run(ctx)
	}()
	return done, nil
}

func showVisualizer(ctx context.Context, stream *audio.SineStream) error {
	game := visualizer.New(stream, visualizer.Options{
		SampleRate: stream.Config().SampleRate,
		Done:       ctx.Done(),
	})
	if err := visualizer.Run(game); err != nil {
		return fmt.Errorf("visualizer failed: %w", err)
	}
	return nil
}

// showHeadless keeps audio running without a window and logs status every
// interval until ctx is cancelled
func showHeadless(interval time.Duration) displayFunc {
	return func(ctx context.Context, stream *audio.SineStream) error {
		printBanner(stream)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("🛑 Shutting down scope...")
				logStatus(stream.Stats())
				return nil
			case <-ticker.C:
				logStatus(stream.Stats())
			}
		}
	}
}

func printBanner(stream *audio.SineStream) {
	cfg := stream.Config()
	fmt.Println()
	fmt.Println("🔊 Loqa Scope - Sine Output Active!")
	fmt.Println("===================================")
	fmt.Println()
	fmt.Printf("🎚️  Device: %s\n", stream.Device().Name)
	fmt.Printf("📐 Format: %.0f Hz, %d channel(s), %d frames per block\n", cfg.SampleRate, cfg.Channels, cfg.BlockSize)
	fmt.Printf("〰️  Speed: %.4f rad/sample\n", stream.Speed())
	fmt.Println()
	fmt.Println("⏹️  Press Ctrl+C to stop")
	fmt.Println()
}

func logStatus(stats audio.StreamStats) {
	log.Printf("📊 Scope: speed=%.4f blocks=%d dropped=%d device_errors=%d",
		stats.Speed, stats.Blocks, stats.DroppedBlocks, stats.DeviceErrors)
}
