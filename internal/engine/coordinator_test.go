package engine

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/switchboard/internal/catalog"
	"github.com/mattjoyce/switchboard/internal/handler"
	"github.com/mattjoyce/switchboard/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

// recordingObserver captures observability events for assertions.
type recordingObserver struct {
	starts     []string
	selected   []string
	deprecated []string
	failed     []string
	failedErrs []error
}

func (r *recordingObserver) SpanStart(capability string) {
	r.starts = append(r.starts, capability)
}

func (r *recordingObserver) HandlerSelected(capability, name string) {
	r.selected = append(r.selected, name)
}

func (r *recordingObserver) DeprecationWarning(name, version string) {
	r.deprecated = append(r.deprecated, name)
}

func (r *recordingObserver) HandlerFailed(capability, name string, err error) {
	r.failed = append(r.failed, name)
	r.failedErrs = append(r.failedErrs, err)
}

type fakeHandler struct {
	meta      handler.Metadata
	canHandle bool
	handled   bool
	err       error
	calls     int
}

func (f *fakeHandler) Metadata() handler.Metadata      { return f.meta }
func (f *fakeHandler) CanHandle(*handler.Request) bool { return f.canHandle }

func (f *fakeHandler) Execute(*handler.Request) (bool, error) {
	f.calls++
	return f.handled, f.err
}

func fake(name string, capability string, priority int, opts func(*fakeHandler)) *fakeHandler {
	f := &fakeHandler{
		meta: handler.Metadata{
			Name:       name,
			Version:    semver.MustParse("1.0.0"),
			Capability: capability,
			Priority:   priority,
		},
		canHandle: true,
		handled:   true,
	}
	if opts != nil {
		opts(f)
	}
	return f
}

func newCoordinator(t *testing.T, obs *recordingObserver, handlers ...handler.Handler) *Coordinator {
	t.Helper()
	cat, err := catalog.Build(handlers)
	require.NoError(t, err)
	if obs == nil {
		return New(cat, nil)
	}
	return New(cat, obs)
}

func request(capability string) *handler.Request {
	return handler.NewRequest(context.Background(), capability, nil)
}

func TestBestFitWins(t *testing.T) {
	low := fake("Low", "Export", 10, nil)
	high := fake("High", "Export", 100, nil)
	obs := &recordingObserver{}

	coord := newCoordinator(t, obs, low, high)
	res, err := coord.Execute(request("Export"))
	require.NoError(t, err)

	assert.Equal(t, "High", res.Handler)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, high.calls)
	assert.Zero(t, low.calls, "lower-priority candidate must not run when best fit succeeds")
	assert.Equal(t, []string{"High"}, obs.selected)
	assert.Equal(t, []string{"Export"}, obs.starts)
	assert.NotEmpty(t, res.RequestID)
}

func TestFallbackOnFault(t *testing.T) {
	boom := errors.New("smtp connection refused")
	broken := fake("Broken", "Notify", 100, func(f *fakeHandler) { f.err = boom })
	email := fake("Email", "Notify", 10, nil)
	obs := &recordingObserver{}

	coord := newCoordinator(t, obs, broken, email)
	res, err := coord.Execute(request("Notify"))
	require.NoError(t, err)

	assert.Equal(t, "Email", res.Handler)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, email.calls)
	assert.Equal(t, []string{"Broken"}, obs.failed)
	require.Len(t, obs.failedErrs, 1)
	assert.ErrorIs(t, obs.failedErrs[0], boom)
}

func TestDeclineIsSilent(t *testing.T) {
	high := fake("High", "Export", 100, func(f *fakeHandler) { f.canHandle = false })
	low := fake("Low", "Export", 1, nil)
	obs := &recordingObserver{}

	coord := newCoordinator(t, obs, high, low)
	res, err := coord.Execute(request("Export"))
	require.NoError(t, err)

	assert.Equal(t, "Low", res.Handler)
	assert.Zero(t, high.calls, "ineligible candidate must never be executed")
	assert.Equal(t, 1, low.calls)
	assert.Empty(t, obs.failed, "skipping is not an error")
}

func TestExhaustionCarriesLastFault(t *testing.T) {
	boom := errors.New("disk full")
	only := fake("Only", "Export", 1, func(f *fakeHandler) { f.err = boom })

	coord := newCoordinator(t, nil, only)
	_, err := coord.Execute(request("Export"))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "Export", exhausted.Capability)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.ErrorIs(t, err, boom, "cause must unwrap to the last fault")
}

func TestExhaustionLastFaultIsLastInIterationOrder(t *testing.T) {
	first := errors.New("first fault")
	second := errors.New("second fault")
	a := fake("A", "Export", 100, func(f *fakeHandler) { f.err = first })
	b := fake("B", "Export", 50, func(f *fakeHandler) { f.err = second })

	coord := newCoordinator(t, nil, a, b)
	_, err := coord.Execute(request("Export"))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, second)
	assert.NotErrorIs(t, err, first)
	assert.Equal(t, 2, exhausted.Attempts)
}

func TestExhaustionWithoutFault(t *testing.T) {
	declining := fake("Declines", "Export", 1, func(f *fakeHandler) { f.handled = false })

	coord := newCoordinator(t, nil, declining)
	_, err := coord.Execute(request("Export"))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.NoError(t, exhausted.LastErr, "pure declines carry no cause")
	assert.Equal(t, 1, declining.calls)
}

func TestUnsupportedCapability(t *testing.T) {
	bystander := fake("Bystander", "Export", 1, nil)
	obs := &recordingObserver{}

	coord := newCoordinator(t, obs, bystander)
	_, err := coord.Execute(request("Unknown"))

	var unsupported *UnsupportedCapabilityError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "Unknown", unsupported.Capability)
	assert.Zero(t, bystander.calls, "no handler may be touched for an unknown capability")
	assert.Empty(t, obs.starts, "no span for an unsupported capability")
}

func TestDeprecatedHandlerStillExecutes(t *testing.T) {
	old := fake("Old", "Export", 10, func(f *fakeHandler) { f.meta.Deprecated = true })
	obs := &recordingObserver{}

	coord := newCoordinator(t, obs, old)
	res, err := coord.Execute(request("Export"))
	require.NoError(t, err)

	assert.Equal(t, "Old", res.Handler)
	assert.Equal(t, []string{"Old"}, obs.deprecated)
}

func TestDeclinedThenFaultedThenSuccess(t *testing.T) {
	declines := fake("Declines", "Notify", 100, func(f *fakeHandler) { f.handled = false })
	faults := fake("Faults", "Notify", 50, func(f *fakeHandler) { f.err = errors.New("boom") })
	works := fake("Works", "Notify", 10, nil)

	coord := newCoordinator(t, nil, works, faults, declines)
	res, err := coord.Execute(request("Notify"))
	require.NoError(t, err)

	assert.Equal(t, "Works", res.Handler)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 1, declines.calls)
	assert.Equal(t, 1, faults.calls)
	assert.Equal(t, 1, works.calls)
}

func TestNilObserverDoesNotChangeOutcome(t *testing.T) {
	h := fake("H", "Export", 1, nil)

	coord := newCoordinator(t, nil, h)
	res, err := coord.Execute(request("Export"))
	require.NoError(t, err)
	assert.Equal(t, "H", res.Handler)
}
