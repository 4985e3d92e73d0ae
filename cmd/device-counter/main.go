// Command device-counter is a pseudo device service emulating counters.
// Each device addresses one of 256 counters through the "Counter"
// protocol's Index property; reading the count register increments it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/c360/devicesdk/models"
	"github.com/c360/devicesdk/pkg/nvpairs"
	"github.com/c360/devicesdk/service"
)

const (
	serviceName = "device-counter"
	version     = "1.0.0"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	svc, err := service.New(serviceName, version, newCounterDriver(), os.Args[1:])
	if err != nil {
		return err
	}
	defer svc.Free()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	svc.Stop(false)
	return nil
}

// counterDriver serves monotonically increasing counters.
const ncounters = 256

type counterDriver struct {
	logger   *slog.Logger
	mu       sync.Mutex
	counters [ncounters]uint32
}

func newCounterDriver() *counterDriver {
	return &counterDriver{logger: slog.Default()}
}

// Initialize records the service logger; counters start at zero.
func (d *counterDriver) Initialize(logger *slog.Logger, _ nvpairs.List) error {
	if logger != nil {
		d.logger = logger
	}
	return nil
}

// Stop has nothing to tear down.
func (d *counterDriver) Stop(bool) error { return nil }

// deviceIndex resolves a device's counter from its Counter protocol.
func (d *counterDriver) deviceIndex(protocols nvpairs.Protocols) (int, error) {
	props, ok := protocols.Properties("Counter")
	if !ok {
		return 0, fmt.Errorf("no Counter protocol in device address")
	}
	idx, ok := props.Int64Value("Index")
	if !ok || idx < 0 || idx >= ncounters {
		v, _ := props.Value("Index")
		return 0, fmt.Errorf("invalid Index: %q", v)
	}
	return int(idx), nil
}

// ReadCommands serves the count register: each read returns the current
// value and increments it.
func (d *counterDriver) ReadCommands(deviceName string, protocols nvpairs.Protocols, resources []string) ([]models.CommandValue, error) {
	index, err := d.deviceIndex(protocols)
	if err != nil {
		d.logger.Error("Read rejected", "device", deviceName, "error", err)
		return nil, err
	}

	values := make([]models.CommandValue, 0, len(resources))
	for _, res := range resources {
		switch res {
		case "count":
			d.mu.Lock()
			v := d.counters[index]
			d.counters[index]++
			d.mu.Unlock()
			values = append(values, models.CommandValue{
				Resource: res,
				Value:    v,
				Origin:   models.NowMillis(),
			})
		default:
			return nil, fmt.Errorf("request for nonexistent register %s", res)
		}
	}
	return values, nil
}

// WriteCommands sets a counter's value.
func (d *counterDriver) WriteCommands(deviceName string, protocols nvpairs.Protocols, values []models.CommandValue) error {
	index, err := d.deviceIndex(protocols)
	if err != nil {
		d.logger.Error("Write rejected", "device", deviceName, "error", err)
		return err
	}
	for _, v := range values {
		if v.Resource != "count" {
			return fmt.Errorf("request for nonexistent register %s", v.Resource)
		}
		n, ok := asUint32(v.Value)
		if !ok {
			return fmt.Errorf("count must be an unsigned integer")
		}
		d.mu.Lock()
		d.counters[index] = n
		d.mu.Unlock()
	}
	return nil
}

func asUint32(v any) (uint32, bool) {
	switch t := v.(type) {
	case uint32:
		return t, true
	case int:
		if t >= 0 {
			return uint32(t), true
		}
	case int64:
		if t >= 0 && t <= 1<<32-1 {
			return uint32(t), true
		}
	case float64:
		if t >= 0 && t == float64(uint32(t)) {
			return uint32(t), true
		}
	}
	return 0, false
}
