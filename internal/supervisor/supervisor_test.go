package supervisor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SynapticNetworks/threadctl/config"
	"github.com/SynapticNetworks/threadctl/internal/controller"
	"github.com/SynapticNetworks/threadctl/internal/gateway"
	"github.com/SynapticNetworks/threadctl/internal/supervisor"
)

func TestSupervisor_RunAndShutdown(t *testing.T) {
	cfg, err := config.New(
		config.WithNeedleMaxAcceleration(0.05),
		config.WithSurfacePollPeriod(2*time.Millisecond),
		config.WithSampleWindow(10*time.Millisecond, 300*time.Millisecond),
	)
	require.NoError(t, err)

	gw := gateway.NewSimRobot(gateway.SinusoidSurface(3000, 0, time.Second), func(int64) time.Duration { return 5 * time.Millisecond })
	sup, err := supervisor.New(gw, cfg, nil)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sup.Run(runCtx)
	}()

	ctx, cancelOp := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelOp()

	outcome, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.Ok, outcome)

	outcome, err = sup.Shutdown(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.Ok, outcome)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestSupervisor_DiagnosticsReflectActivity(t *testing.T) {
	cfg, err := config.New(config.WithNeedleMaxAcceleration(0.05), config.WithSurfacePollPeriod(2*time.Millisecond))
	require.NoError(t, err)

	gw := gateway.NewSimRobot(gateway.SinusoidSurface(3000, 0, time.Second), func(int64) time.Duration { return 5 * time.Millisecond })
	sup, err := supervisor.New(gw, cfg, nil)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sup.Run(runCtx) }()

	ctx, cancelOp := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelOp()
	_, err = sup.Controller().Calibrate(ctx)
	require.NoError(t, err)

	assert.Greater(t, sup.Diagnostics().BufferDepth(), int64(0))
}
