package units

import (
	"context"
	"strconv"
	"strings"
	"time"

	"twharness/internal/harness"
)

// DerivedMeasuresUnit is the manifest name of the derived measures test
const DerivedMeasuresUnit = "test_update_derived_measures"

const expectedPower = 50

// derivedMeasuresPropagation is how long the reducer may take to update power
var derivedMeasuresPropagation = time.Second

func init() {
	harness.Register(DerivedMeasuresUnit, UpdateDerivedMeasures)
}

// UpdateDerivedMeasures writes voltage and current and expects the derived
// power measure to be their product.
func UpdateDerivedMeasures(ctx context.Context, gw harness.Gateway, _ *harness.ExecutionContext) harness.Verdict {
	result := gw.Invoke(ctx, "contracts", "list", "--stdout-format=tooling")
	if !result.Succeeded() {
		return harness.Failed{Message: "Cannot obtain the registered services"}
	}
	if !strings.Contains(result.Stdout, "Tinkwell.Store") {
		return harness.Failed{Message: "Service 'Tinkwell.Store' is not running"}
	}

	for _, m := range []struct{ name, value string }{
		{"voltage", "10 V"},
		{"current", "5 A"},
	} {
		result = gw.Invoke(ctx, "measures", "write", m.name, m.value, "--stdout-format=tooling")
		if !result.Succeeded() {
			return harness.Failed{Message: "Cannot update a constant measure"}
		}
	}

	select {
	case <-ctx.Done():
		return harness.Failf("interrupted while waiting for derived measures: %v", ctx.Err())
	case <-time.After(derivedMeasuresPropagation):
	}

	result = gw.Invoke(ctx, "measures", "read", "power", "--stdout-format=tooling")
	if !result.Succeeded() {
		return harness.Failed{Message: "Cannot read a derived measure"}
	}

	out := strings.TrimSpace(result.Stdout)
	power, err := strconv.Atoi(out)
	if err != nil {
		return harness.InvalidResult{Description: "power is not an integer: " + strconv.Quote(out)}
	}
	if power != expectedPower {
		return harness.Failf("Measure 'power' should be %d W but it's %s W", expectedPower, out)
	}
	return harness.Passed{}
}
