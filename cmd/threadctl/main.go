// Command threadctl is a smoke-test harness: it wires a simulated Robot
// Gateway to the control core and drives one calibrate/insert/retract
// cycle, printing the resulting state transitions and terminal outcomes.
// It exists for local iteration on the core without the full (and
// out-of-scope) simulator and replay harness.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SynapticNetworks/threadctl/config"
	"github.com/SynapticNetworks/threadctl/internal/gateway"
	"github.com/SynapticNetworks/threadctl/internal/logging"
	"github.com/SynapticNetworks/threadctl/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "threadctl:", err)
		os.Exit(1)
	}
}

func run() error {
	depth := flag.Int64("depth", 800, "target insertion depth past the surface, microns")
	accel := flag.Float64("accel", 0.02, "needle max acceleration, microns/ms^2")
	verbose := flag.Bool("v", false, "emit structured logs to stderr")
	flag.Parse()

	log := logging.Discard
	if *verbose {
		log = logging.New(os.Stderr)
	}

	cfg, err := config.New(config.WithNeedleMaxAcceleration(*accel))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	robot := gateway.NewSimRobot(
		gateway.SinusoidSurface(3000, 500, time.Second),
		func(distance int64) time.Duration {
			// simulated move duration roughly proportional to distance,
			// clamped to [50ms, 300ms]; the upper bound matches the
			// motion-command latency ceiling.
			d := time.Duration(distance) * time.Microsecond
			if d < 50*time.Millisecond {
				d = 50 * time.Millisecond
			}
			if d > 300*time.Millisecond {
				d = 300 * time.Millisecond
			}
			return d
		},
	)

	sup, err := supervisor.New(robot, cfg, log)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- sup.Run(ctx) }()

	ctrl := sup.Controller()
	states := ctrl.SubscribeState()
	go func() {
		for s := range states {
			fmt.Println("state:", s)
		}
	}()

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	outcome, err := ctrl.Calibrate(opCtx)
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	fmt.Println("calibrate:", outcome)

	outcome, err = ctrl.Insert(opCtx, *depth)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	fmt.Println("insert:", outcome)

	outcome, err = ctrl.Retract(opCtx)
	if err != nil {
		return fmt.Errorf("retract: %w", err)
	}
	fmt.Println("retract:", outcome)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	outcome, err = sup.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	fmt.Println("shutdown:", outcome)

	stop()
	return <-runErrCh
}
