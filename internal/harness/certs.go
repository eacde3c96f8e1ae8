package harness

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Certificate export names under the Cert/ folder.
const (
	certificateExportName = "tinkwell"
	serverCertificateExt  = ".pfx"
	clientCertificateExt  = "-cert.pem"
)

// certificateHosts are the loopback names every run certificate covers.
var certificateHosts = []string{"localhost", "127.0.0.1", "::1"}

// CertificateFiles are the paths of an exported certificate pair.
type CertificateFiles struct {
	// ServerPath is the password protected PKCS#12 bundle with the private key.
	ServerPath string
	// ClientPath is the PEM encoded certificate clients trust. It holds no key.
	ClientPath string
}

// certificatePaths returns where a certificate named exportName lives in dir.
func certificatePaths(dir, exportName string) CertificateFiles {
	return CertificateFiles{
		ServerPath: filepath.Join(dir, exportName+serverCertificateExt),
		ClientPath: filepath.Join(dir, exportName+clientCertificateExt),
	}
}

// GenerateSelfSignedCertificate creates a self-signed certificate valid for
// both server and client authentication on the given hosts.
func GenerateSelfSignedCertificate(commonName string, hosts []string, validity time.Duration) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"Tinkwell"},
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		IsCA:                  true,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate ecdsa private key: %w", err)
	}

	certData, err := x509.CreateCertificate(rand.Reader, template, template, privateKey.Public(), privateKey)
	if err != nil {
		return nil, nil, err
	}

	cert, err := x509.ParseCertificate(certData)
	if err != nil {
		return nil, nil, err
	}

	return cert, privateKey, nil
}

// ExportCertificate writes the server form (PKCS#12, password protected) and
// the client form (PEM, certificate only) into dir.
func ExportCertificate(dir, exportName, password string, cert *x509.Certificate, key *ecdsa.PrivateKey) (CertificateFiles, error) {
	files := certificatePaths(dir, exportName)

	pfx, err := pkcs12.Modern.Encode(key, cert, nil, password)
	if err != nil {
		return files, fmt.Errorf("failed to encode PKCS#12 bundle: %w", err)
	}
	if err := os.WriteFile(files.ServerPath, pfx, 0600); err != nil {
		return files, fmt.Errorf("failed to write server certificate: %w", err)
	}

	clientPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	if err := os.WriteFile(files.ClientPath, clientPEM, 0644); err != nil {
		return files, fmt.Errorf("failed to write client certificate: %w", err)
	}

	return files, nil
}
