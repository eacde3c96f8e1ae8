package harness

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"twharness/pkg/textutil"
)

const (
	junitSuiteName     = "Tinkwell Integration Tests"
	junitMessageMaxLen = 256
)

type junitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// WriteJSONReport saves the whole suite result as indented JSON
func WriteJSONReport(path string, result *SuiteResult) error {
	result.Tally()
	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	return writeReportFile(path, jsonData)
}

// WriteJUnitReport saves the suite result in JUnit XML format
func WriteJUnitReport(path string, result *SuiteResult) error {
	suite := junitTestSuite{
		Name:      junitSuiteName,
		Tests:     len(result.Outcomes),
		Timestamp: result.StartTime.Format(time.RFC3339),
		Time:      result.Duration.Seconds(),
		TestCases: make([]junitTestCase, 0, len(result.Outcomes)),
	}

	for _, o := range result.Outcomes {
		tc := junitTestCase{
			Name:      o.FriendlyName,
			ClassName: o.Unit,
			Time:      o.Duration.Seconds(),
		}
		if !o.Passed() {
			suite.Failures++
			tc.Failure = &junitFailure{
				Message: textutil.OneLine(o.Message, junitMessageMaxLen),
				Type:    string(o.Status),
			}
			if o.AppLogs != nil {
				tc.Failure.Content = o.AppLogs.Combined
			}
		}
		if o.TempDir != "" {
			tc.SystemOut = "Temporary directory: " + o.TempDir
		}
		suite.TestCases = append(suite.TestCases, tc)
	}

	data, err := xml.MarshalIndent(suite, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report to XML: %w", err)
	}
	return writeReportFile(path, append([]byte(xml.Header), data...))
}

func writeReportFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}
