package harness

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"twharness/pkg/logging"
)

// Subfolders created in every unit's temp directory.
const (
	userDataFolder = "User"
	appDataFolder  = "App"
	certFolder     = "Cert"
)

// tempDirPrefix is shared by every harness temp directory.
const tempDirPrefix = "Tinkwell."

// ownerFileName records the PID of the harness that created a temp directory.
const ownerFileName = ".twharness.owner"

// Provisioner creates isolated execution contexts
type Provisioner struct {
	config    HarnessConfig
	artifacts Artifacts
	logger    TestLogger

	// listen is replaced in tests to simulate port allocation failures
	listen func(network, address string) (net.Listener, error)
}

// NewProvisioner creates a provisioner for the given artifacts
func NewProvisioner(config HarnessConfig, artifacts Artifacts, logger TestLogger) *Provisioner {
	return &Provisioner{
		config:    config,
		artifacts: artifacts,
		logger:    logger,
		listen:    net.Listen,
	}
}

// Provision creates a fresh execution context for the named unit: a unique
// temp directory with its subfolders, a TCP port and a certificate pair.
// On failure nothing is left on disk unless temp directories are kept.
func (p *Provisioner) Provision(ctx context.Context, unitName string) (_ *ExecutionContext, err error) {
	runID := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	p.logger.Info("Creating isolated environment...\n")
	root := p.config.TempRoot
	if root != "" {
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, fmt.Errorf("failed to create temp root: %w", err)
		}
	}
	tempDir, err := os.MkdirTemp(root, fmt.Sprintf("%s%s.%s.", tempDirPrefix, sanitizeFileName(unitName), runID))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	ec := &ExecutionContext{
		RunID:               runID,
		AppPath:             p.artifacts.AppPath,
		SupervisorPath:      p.artifacts.SupervisorPath,
		CLIPath:             p.artifacts.CLIPath,
		TempDir:             tempDir,
		UserDataDir:         filepath.Join(tempDir, userDataFolder),
		AppDataDir:          filepath.Join(tempDir, appDataFolder),
		CertDir:             filepath.Join(tempDir, certFolder),
		CertificatePassword: p.config.CertificatePassword,
	}

	defer func() {
		if err != nil {
			p.Release(ec)
		}
	}()

	p.logger.Info("Isolated environment at %s\n", tempDir)
	if err := os.WriteFile(filepath.Join(tempDir, ownerFileName), []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return nil, fmt.Errorf("failed to write owner file: %w", err)
	}
	for _, dir := range []string{ec.UserDataDir, ec.AppDataDir, ec.CertDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	ec.Port, ec.PortIsFallback = p.allocatePort()

	p.logger.Info("Creating self-signed certificate...\n")
	files, err := p.createCertificate(ctx, ec)
	if err != nil {
		return nil, err
	}
	ec.ServerCertificatePath = files.ServerPath
	ec.ClientCertificatePath = files.ClientPath
	p.logger.Info("Certificate (server) saved as %s\n", ec.ServerCertificatePath)
	p.logger.Info("Certificate (client) saved as %s\n", ec.ClientCertificatePath)

	return ec, nil
}

// allocatePort asks the OS for a free loopback port. The port is released
// before the application binds it, and when allocation fails the configured
// default is returned with fallback set: neither is guaranteed unique.
func (p *Provisioner) allocatePort() (int, bool) {
	ln, err := p.listen("tcp", "127.0.0.1:0")
	if err != nil {
		logging.Warn("Provisioner", "Could not allocate a free port (%v), falling back to %d", err, p.config.DefaultPort)
		p.logger.Error("Could not allocate a free port, using default port %d\n", p.config.DefaultPort)
		return p.config.DefaultPort, true
	}
	defer ln.Close()

	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok || addr.Port == 0 {
		logging.Warn("Provisioner", "Unexpected listener address %v, falling back to %d", ln.Addr(), p.config.DefaultPort)
		return p.config.DefaultPort, true
	}

	logging.Debug("Provisioner", "Allocated port %d", addr.Port)
	return addr.Port, false
}

func (p *Provisioner) createCertificate(ctx context.Context, ec *ExecutionContext) (CertificateFiles, error) {
	if p.config.CertificateSource == CertificateSourceCLI {
		return p.createCertificateWithCLI(ctx, ec)
	}

	cert, key, err := GenerateSelfSignedCertificate(p.config.CertificateCommonName, certificateHosts, p.config.CertificateValidity)
	if err != nil {
		return CertificateFiles{}, fmt.Errorf("failed to generate certificate: %w", err)
	}
	files, err := ExportCertificate(ec.CertDir, certificateExportName, ec.CertificatePassword, cert, key)
	if err != nil {
		return CertificateFiles{}, fmt.Errorf("failed to export certificate: %w", err)
	}
	return files, nil
}

// createCertificateWithCLI delegates certificate creation to "tw certs create"
func (p *Provisioner) createCertificateWithCLI(ctx context.Context, ec *ExecutionContext) (CertificateFiles, error) {
	gw := NewCommandGateway(p.config, ec, p.logger)
	result := gw.Invoke(ctx, "certs", "create", p.config.CertificateCommonName,
		"--stdout-format=tooling",
		"--set-environment=false",
		"--export-name", certificateExportName,
		"--export-path", ec.CertDir,
		"--export-pem",
		"--unsafe-password="+ec.CertificatePassword,
	)
	if !result.Succeeded() {
		return CertificateFiles{}, fmt.Errorf("certificate creation failed with exit code %d: %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	files := certificatePaths(ec.CertDir, certificateExportName)
	for _, f := range []string{files.ServerPath, files.ClientPath} {
		if _, err := os.Stat(f); err != nil {
			return CertificateFiles{}, fmt.Errorf("certificate creation did not produce %s: %w", filepath.Base(f), err)
		}
	}
	return files, nil
}

// Release removes the context's temp directory unless temp directories are kept
func (p *Provisioner) Release(ec *ExecutionContext) error {
	if ec == nil || ec.TempDir == "" {
		return nil
	}

	if p.config.KeepTempDir {
		p.logger.Info("Keeping temporary directory %s\n", ec.TempDir)
		return nil
	}

	p.logger.Info("Deleting temporary directory %s\n", ec.TempDir)
	if err := os.RemoveAll(ec.TempDir); err != nil {
		logging.Error("Provisioner", err, "Failed to remove temp directory %s", ec.TempDir)
		return fmt.Errorf("failed to remove temp directory: %w", err)
	}
	return nil
}

// maxSanitizedNameLen bounds the unit name part of a temp directory, in runes
const maxSanitizedNameLen = 50

// sanitizeFileName makes a unit name safe for use in a directory name
func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)

	sanitized := []rune(replacer.Replace(name))
	if len(sanitized) > maxSanitizedNameLen {
		sanitized = sanitized[:maxSanitizedNameLen]
	}
	return string(sanitized)
}
