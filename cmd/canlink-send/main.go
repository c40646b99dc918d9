// Copyright 2026 The Canlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/canlink-project/canlink/canbus"
	"github.com/canlink-project/canlink/lib/version"
	"github.com/canlink-project/canlink/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		interfaceName string
		connectAddr   string
		idList        string
		rate          int
		count         int
		showVersion   bool
	)
	flag.StringVar(&interfaceName, "interface", "", "CAN interface to send on (e.g. can0)")
	flag.StringVar(&connectAddr, "connect", "", "collector address to stream wire-format frames to (host:port)")
	flag.StringVar(&idList, "id", "100", "comma-separated hex CAN identifiers to cycle through")
	flag.IntVar(&rate, "rate", 10, "frames per second")
	flag.IntVar(&count, "count", 0, "number of frames to send (0 = until interrupted)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("canlink-send %s\n", version.Info())
		return nil
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if (interfaceName == "") == (connectAddr == "") {
		return fmt.Errorf("exactly one of --interface or --connect is required")
	}
	if rate <= 0 {
		return fmt.Errorf("--rate must be positive, got %d", rate)
	}

	ids, err := parseIDs(idList)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	send, closeSink, err := openSink(interfaceName, connectAddr)
	if err != nil {
		return err
	}
	defer closeSink()

	interval := time.Second / time.Duration(rate)
	source := canbus.NewSynthetic(ids, interval, nil)
	defer source.Close()

	logger.Info("sending",
		"ids", idList,
		"rate", rate,
		"count", count,
	)

	sent := 0
	for count == 0 || sent < count {
		if ctx.Err() != nil {
			break
		}
		frame, err := source.Receive(interval + time.Second)
		if errors.Is(err, canbus.ErrTimeout) {
			continue
		}
		if err != nil {
			return fmt.Errorf("generating frame: %w", err)
		}
		if err := send(frame); err != nil {
			return fmt.Errorf("sending frame %s: %w", frame, err)
		}
		sent++
	}

	logger.Info("done", "sent", sent)
	return nil
}

// parseIDs parses a comma-separated list of hex CAN identifiers.
func parseIDs(list string) ([]uint32, error) {
	var ids []uint32
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseUint(field, 16, 32)
		if err != nil || id > uint64(canbus.MaxExtendedID) {
			return nil, fmt.Errorf("invalid CAN identifier %q (hex, up to 29 bits)", field)
		}
		ids = append(ids, uint32(id))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("--id must name at least one identifier")
	}
	return ids, nil
}

// openSink returns a frame send function for either a CAN interface
// or a TCP wire stream.
func openSink(interfaceName, connectAddr string) (func(canbus.Frame) error, func() error, error) {
	if interfaceName != "" {
		socket, err := canbus.OpenSocketCAN(interfaceName)
		if err != nil {
			return nil, nil, fmt.Errorf("opening CAN interface %s: %w", interfaceName, err)
		}
		return socket.Send, socket.Close, nil
	}

	connection, err := net.DialTimeout("tcp", connectAddr, 10*time.Second)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", connectAddr, err)
	}
	writer := wire.NewWriter(connection)
	return writer.WriteFrame, connection.Close, nil
}
