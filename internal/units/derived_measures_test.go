package units

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twharness/internal/harness"
)

// scriptedGateway answers commands from a table keyed by the joined arguments
type scriptedGateway struct {
	responses map[string]harness.CommandResult
	calls     []string
}

func (g *scriptedGateway) Invoke(ctx context.Context, args ...string) harness.CommandResult {
	key := strings.Join(args, " ")
	g.calls = append(g.calls, key)
	if r, ok := g.responses[key]; ok {
		r.Args = args
		return r
	}
	return harness.CommandResult{Args: args, ExitCode: 1, Stderr: "unknown command"}
}

func (g *scriptedGateway) InvokeWithInput(ctx context.Context, input string, args ...string) harness.CommandResult {
	return g.Invoke(ctx, args...)
}

func healthyResponses(power string) map[string]harness.CommandResult {
	return map[string]harness.CommandResult{
		"contracts list --stdout-format=tooling":              {Stdout: "Tinkwell.Orchestrator\nTinkwell.Store\n"},
		"measures write voltage 10 V --stdout-format=tooling": {},
		"measures write current 5 A --stdout-format=tooling":  {},
		"measures read power --stdout-format=tooling":         {Stdout: power + "\n"},
	}
}

func TestUpdateDerivedMeasures(t *testing.T) {
	derivedMeasuresPropagation = time.Millisecond

	tests := []struct {
		name      string
		responses func() map[string]harness.CommandResult
		want      harness.Verdict
	}{
		{
			name:      "power is the product of voltage and current",
			responses: func() map[string]harness.CommandResult { return healthyResponses("50") },
			want:      harness.Passed{},
		},
		{
			name:      "wrong power value",
			responses: func() map[string]harness.CommandResult { return healthyResponses("49") },
			want:      harness.Failed{Message: "Measure 'power' should be 50 W but it's 49 W"},
		},
		{
			name:      "non numeric power",
			responses: func() map[string]harness.CommandResult { return healthyResponses("n/a") },
			want:      harness.InvalidResult{Description: `power is not an integer: "n/a"`},
		},
		{
			name: "store not registered",
			responses: func() map[string]harness.CommandResult {
				r := healthyResponses("50")
				r["contracts list --stdout-format=tooling"] = harness.CommandResult{Stdout: "Tinkwell.Orchestrator\n"}
				return r
			},
			want: harness.Failed{Message: "Service 'Tinkwell.Store' is not running"},
		},
		{
			name: "contracts list fails",
			responses: func() map[string]harness.CommandResult {
				r := healthyResponses("50")
				r["contracts list --stdout-format=tooling"] = harness.CommandResult{ExitCode: harness.ExitCodeTimedOut}
				return r
			},
			want: harness.Failed{Message: "Cannot obtain the registered services"},
		},
		{
			name: "write rejected",
			responses: func() map[string]harness.CommandResult {
				r := healthyResponses("50")
				r["measures write current 5 A --stdout-format=tooling"] = harness.CommandResult{ExitCode: 2}
				return r
			},
			want: harness.Failed{Message: "Cannot update a constant measure"},
		},
		{
			name: "read fails",
			responses: func() map[string]harness.CommandResult {
				r := healthyResponses("50")
				r["measures read power --stdout-format=tooling"] = harness.CommandResult{ExitCode: 1}
				return r
			},
			want: harness.Failed{Message: "Cannot read a derived measure"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &scriptedGateway{responses: tt.responses()}
			got := UpdateDerivedMeasures(context.Background(), gw, &harness.ExecutionContext{})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpdateDerivedMeasures_CallOrder(t *testing.T) {
	derivedMeasuresPropagation = time.Millisecond

	gw := &scriptedGateway{responses: healthyResponses("50")}
	UpdateDerivedMeasures(context.Background(), gw, &harness.ExecutionContext{})

	assert.Equal(t, []string{
		"contracts list --stdout-format=tooling",
		"measures write voltage 10 V --stdout-format=tooling",
		"measures write current 5 A --stdout-format=tooling",
		"measures read power --stdout-format=tooling",
	}, gw.calls)
}

func TestUpdateDerivedMeasures_Registered(t *testing.T) {
	fn, ok := harness.DefaultRegistry().Lookup(DerivedMeasuresUnit)
	require.True(t, ok)
	require.NotNil(t, fn)
}
