package controller_test

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

// testConfig returns fast, deterministic tunables suited to driving a
// SimRobot within a test's time budget.
func testConfig(t *testing.T, opts ...config.Option) config.Config {
	t.Helper()
	base := []config.Option{
		config.WithNeedleMaxAcceleration(0.05),
		config.WithSurfacePollPeriod(2 * time.Millisecond),
		config.WithSampleWindow(10*time.Millisecond, 300*time.Millisecond),
		config.WithGatewayCallDeadline(2 * time.Second),
		config.WithInBrainDwellLimit(2 * time.Second),
		config.WithPanicStalenessLimit(200 * time.Millisecond),
		config.WithRetryPace(100*time.Millisecond, 50),
	}
	cfg, err := config.New(append(base, opts...)...)
	require.NoError(t, err)
	return cfg
}

func fastMoveDuration(distanceMicrons int64) time.Duration {
	return 5 * time.Millisecond
}

// harness starts a Supervisor against a SimRobot and tears both down at
// test cleanup.
func harness(t *testing.T, gw gateway.Robot, cfg config.Config) *supervisor.Supervisor {
	t.Helper()
	sup, err := supervisor.New(gw, cfg, nil)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sup.Run(runCtx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("supervisor did not stop")
		}
	})
	return sup
}

func flatRobot() *gateway.SimRobot {
	return gateway.NewSimRobot(gateway.SinusoidSurface(3000, 0, time.Second), fastMoveDuration)
}

func TestCalibrate_FromUncalibrated_ReachesCalibrated(t *testing.T) {
	sup := harness(t, flatRobot(), testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	outcome, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.Ok, outcome)
	assert.Equal(t, controller.OutOfBrainCalibrated, sup.Controller().State())
}

func TestCalibrate_Idempotent_WhenAlreadyCalibrated(t *testing.T) {
	sup := harness(t, flatRobot(), testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)

	outcome, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.Ok, outcome)
	assert.Equal(t, controller.OutOfBrainCalibrated, sup.Controller().State())
}

func TestRetract_IdempotentFromSafeStates(t *testing.T) {
	sup := harness(t, flatRobot(), testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// from OutOfBrainUncalibrated: no-op Ok.
	outcome, err := sup.Controller().Retract(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.Ok, outcome)
	assert.Equal(t, controller.OutOfBrainUncalibrated, sup.Controller().State())

	_, err = sup.Controller().Calibrate(ctx)
	require.NoError(t, err)

	// from OutOfBrainCalibrated: no-op Ok.
	outcome, err = sup.Controller().Retract(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.Ok, outcome)
	assert.Equal(t, controller.OutOfBrainCalibrated, sup.Controller().State())
}

func TestInsert_RejectsNonPositiveDepth(t *testing.T) {
	sup := harness(t, flatRobot(), testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)

	outcome, err := sup.Controller().Insert(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, controller.OutcomeAborted, outcome.Kind)
	assert.Equal(t, controller.OutOfBrainCalibrated, sup.Controller().State(), "rejected insert must not disturb state")

	outcome, err = sup.Controller().Insert(ctx, -5)
	require.NoError(t, err)
	assert.Equal(t, controller.OutcomeAborted, outcome.Kind)
}

func TestInsert_RejectedWhenNotCalibrated(t *testing.T) {
	sup := harness(t, flatRobot(), testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	outcome, err := sup.Controller().Insert(ctx, 800)
	require.NoError(t, err)
	assert.Equal(t, controller.OutcomeAborted, outcome.Kind)
}

func TestRoundTrip_CalibrateInsertRetractCalibrate(t *testing.T) {
	sup := harness(t, flatRobot(), testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)
	require.Equal(t, controller.OutOfBrainCalibrated, sup.Controller().State())

	outcome, err := sup.Controller().Insert(ctx, 800)
	require.NoError(t, err)
	require.Equal(t, controller.Ok, outcome)
	assert.Equal(t, controller.OutOfBrainCalibrated, sup.Controller().State(), "insert must return the needle to calibrated")

	outcome, err = sup.Controller().Retract(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.Ok, outcome)
	assert.Equal(t, controller.OutOfBrainCalibrated, sup.Controller().State())

	outcome, err = sup.Controller().Calibrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.Ok, outcome)
	assert.Equal(t, controller.OutOfBrainCalibrated, sup.Controller().State())
}

func TestInsert_AlreadyInProgress_Rejected(t *testing.T) {
	sup := harness(t, flatRobot(), testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)

	first := make(chan controller.Outcome, 1)
	go func() {
		o, _ := sup.Controller().Insert(ctx, 800)
		first <- o
	}()

	// give the first insert a moment to claim busy/InBrain before the second fires.
	time.Sleep(20 * time.Millisecond)

	outcome, err := sup.Controller().Insert(ctx, 800)
	require.NoError(t, err)
	assert.Equal(t, controller.OutcomeAborted, outcome.Kind)

	select {
	case o := <-first:
		assert.Equal(t, controller.Ok, o)
	case <-time.After(4 * time.Second):
		t.Fatal("first insert never completed")
	}
}

func TestPanic_ExternalTrigger_RecoversToUncalibrated(t *testing.T) {
	sup := harness(t, flatRobot(), testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)

	sup.Controller().Panic()

	require.Eventually(t, func() bool {
		return sup.Controller().State() == controller.OutOfBrainUncalibrated
	}, 2*time.Second, 2*time.Millisecond, "panic must recover to HOME within bounded time")
}

func TestPanic_DuringInsert_ResolvesFatal(t *testing.T) {
	sup := harness(t, flatRobot(), testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)

	resultCh := make(chan controller.Outcome, 1)
	go func() {
		o, _ := sup.Controller().Insert(ctx, 800)
		resultCh <- o
	}()

	time.Sleep(5 * time.Millisecond)
	sup.Controller().Panic()

	select {
	case o := <-resultCh:
		assert.Equal(t, controller.OutcomeFatal, o.Kind)
	case <-time.After(4 * time.Second):
		t.Fatal("superseded insert never resolved")
	}
	require.Eventually(t, func() bool {
		return sup.Controller().State() == controller.OutOfBrainUncalibrated
	}, 2*time.Second, 2*time.Millisecond)
}

func TestPositionError_DuringMove_EscalatesToPanic(t *testing.T) {
	gw := flatRobot()
	sup := harness(t, gw, testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	gw.InjectNextMoveError(gateway.ErrPosition)

	outcome, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.OutcomeFatal, outcome.Kind)

	require.Eventually(t, func() bool {
		return sup.Controller().State() == controller.OutOfBrainUncalibrated
	}, 2*time.Second, 2*time.Millisecond)
}

func TestConnectionError_DuringCalibrate_RetriesToOk(t *testing.T) {
	gw := flatRobot()
	sup := harness(t, gw, testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	gw.InjectNextMoveError(gateway.ErrConnection)

	outcome, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.Ok, outcome, "a transient connection error must be retried, not fatal")
	assert.Equal(t, controller.OutOfBrainCalibrated, sup.Controller().State())
}

func TestSensorFault_DuringCalibrationWindow_StillCompletes(t *testing.T) {
	gw := gateway.NewSimRobot(gateway.SinusoidSurface(3000, 0, time.Second), fastMoveDuration)
	gw.InjectSensorFaultWindow(0, 5*time.Millisecond)
	sup := harness(t, gw, testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	outcome, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.Ok, outcome)
}

func TestShutdown_FromCalibrated_ReachesUncalibrated(t *testing.T) {
	sup := harness(t, flatRobot(), testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)

	outcome, err := sup.Shutdown(ctx)
	require.NoError(t, err)
	assert.Equal(t, controller.Ok, outcome)
	assert.Equal(t, controller.OutOfBrainUncalibrated, sup.Controller().State())
}

func TestShutdown_Idempotent_ConcurrentCallsAllResolve(t *testing.T) {
	sup := harness(t, flatRobot(), testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)

	results := make(chan controller.Outcome, 2)
	go func() {
		o, _ := sup.Controller().Shutdown(ctx)
		results <- o
	}()
	go func() {
		o, _ := sup.Controller().Shutdown(ctx)
		results <- o
	}()

	for i := 0; i < 2; i++ {
		select {
		case o := <-results:
			assert.Equal(t, controller.Ok, o)
		case <-time.After(3 * time.Second):
			t.Fatal("shutdown never resolved for both callers")
		}
	}
}

func TestDwellTimeout_WithinLimitSucceedsBeyondLimitPanics(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		gw := gateway.NewSimRobot(gateway.SinusoidSurface(3000, 0, time.Second), func(int64) time.Duration {
			return 20 * time.Millisecond
		})
		sup := harness(t, gw, testConfig(t, config.WithInBrainDwellLimit(500*time.Millisecond)))
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		_, err := sup.Controller().Calibrate(ctx)
		require.NoError(t, err)
		outcome, err := sup.Controller().Insert(ctx, 800)
		require.NoError(t, err)
		assert.Equal(t, controller.Ok, outcome)
	})

	t.Run("beyond limit", func(t *testing.T) {
		gw := gateway.NewSimRobot(gateway.SinusoidSurface(3000, 0, time.Second), func(int64) time.Duration {
			return time.Second
		})
		sup := harness(t, gw, testConfig(t, config.WithInBrainDwellLimit(30*time.Millisecond)))
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		_, err := sup.Controller().Calibrate(ctx)
		require.NoError(t, err)
		outcome, err := sup.Controller().Insert(ctx, 800)
		require.NoError(t, err)
		assert.Equal(t, controller.OutcomeFatal, outcome.Kind)
	})
}

func TestDiagnostics_TrackBufferDepthAndPanicCount(t *testing.T) {
	sup := harness(t, flatRobot(), testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)

	assert.Greater(t, sup.Diagnostics().BufferDepth(), int64(0))
	assert.Equal(t, int64(0), sup.Diagnostics().PanicTriggerCount())

	sup.Controller().Panic()
	require.Eventually(t, func() bool {
		return sup.Diagnostics().PanicTriggerCount() == 1
	}, 2*time.Second, 2*time.Millisecond)
}

func TestSubscribeState_ReceivesTransitions(t *testing.T) {
	sup := harness(t, flatRobot(), testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ch := sup.Controller().SubscribeState()
	initial := <-ch
	assert.Equal(t, controller.OutOfBrainUncalibrated, initial)

	_, err := sup.Controller().Calibrate(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case s := <-ch:
			return s == controller.OutOfBrainCalibrated
		default:
			return false
		}
	}, 2*time.Second, 2*time.Millisecond)
}
