package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares the observed result against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the result doesn't match the golden file.
func RunWithGolden(t *testing.T, sc *Scenario) (*ScenarioResult, error) {
	t.Helper()

	result, err := RunScenario(sc)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	newGoldie(t).Assert(t, sc.Name, data)
	return result, nil
}

// AssertReportGolden compares a run report's text rendering against
// testdata/golden/{name}.golden.
func AssertReportGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	newGoldie(t).Assert(t, name, []byte(result.String()+"\n"))
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}
