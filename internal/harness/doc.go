// Package harness runs integration tests against a live Tinkwell application.
//
// Every test unit gets its own isolated environment and its own instance of
// the application. Units run strictly one after the other:
//
//	Scout ──► Runner ──► Executor ──► Reporter
//	                        │
//	          ┌─────────────┼──────────────┐
//	          │             │              │
//	     Provisioner   Controller   CommandGateway
//
// # Components
//
// The Scout discovers YAML manifests named test_*.yaml in the test
// directory, filters them by trait and orders them by priority. A unit's
// logic is either the scripted steps of its manifest or a Go function
// registered under the unit name with Register.
//
// The Provisioner creates an ExecutionContext for each unit: a temporary
// directory with User, App and Cert subfolders, a free TCP port and a
// self-signed certificate pair exported as PKCS#12 and PEM.
//
// The ApplicationController starts the supervisor with the context's
// environment, waits until "supervisor send ping" reports OK and shuts it
// down gracefully, killing the process group when the grace period elapses.
//
// The CommandGateway invokes the Tinkwell CLI with a timeout. It never
// returns errors: timeouts and launch failures are reported with the
// sentinel exit codes ExitCodeTimedOut and ExitCodeGatewayError.
//
// The Executor drives one unit through provision, start, readiness, logic
// and teardown. Teardown runs whatever happened before it, panics included.
//
// The Reporter prints progress and a summary table, decides the exit code
// and optionally writes JSON, JUnit XML and Prometheus textfile reports.
package harness
