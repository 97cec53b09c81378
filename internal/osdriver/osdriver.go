// Package osdriver wires ftpd's MainDriver/Authorizer to a real filesystem
// tree, the way cmd/ftpd needs for local serving (the core library itself
// stays filesystem-agnostic behind afero.Fs). Grounded on the teacher's
// sample/sample_driver.go: per-user base directory jailing and live
// self-signed certificate generation when no cert/key files are given.
package osdriver

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/coriolis-labs/ftpd"
)

// UserConfig is one account to register with the Authorizer, relative to
// Config.Directory.
type UserConfig struct {
	Name     string
	Password string
	SubDir   string // joined onto Config.Directory; "" serves the root
	Perm     string // defaults to "elradfmwMT" (full access) when empty
}

// Config collects everything New needs to build a driver serving real
// files from disk.
type Config struct {
	Directory   string
	Users       []UserConfig
	AnonWrite   bool // grant anonymous the write permission letter too
	CertFile    string
	KeyFile     string
	EnableTLS   bool
}

const fullPerm = "elradfmwMT"

// New builds a *ftpd.MainDriver rooted at cfg.Directory, with every user in
// cfg.Users registered against a fresh Authorizer. When cfg.Users is empty,
// an anonymous account is registered instead, matching the teacher's
// sample driver default of serving everyone from one shared tree.
func New(cfg Config) (*ftpd.MainDriver, error) {
	authorizer := ftpd.NewAuthorizer(ftpd.NewScheduler())

	users := cfg.Users
	if len(users) == 0 {
		perm := "elr"
		if cfg.AnonWrite {
			perm = fullPerm
		}

		users = []UserConfig{{Name: "anonymous", SubDir: "", Perm: perm}}
	}

	for _, u := range users {
		perm := u.Perm
		if perm == "" {
			perm = fullPerm
		}

		home := filepath.Join(cfg.Directory, u.SubDir)

		var err error
		if u.Name == "anonymous" {
			_, err = authorizer.AddAnonymous(home, perm, "", "")
		} else {
			_, err = authorizer.AddUser(u.Name, u.Password, home, perm, "", "")
		}

		if err != nil {
			return nil, fmt.Errorf("registering user %q: %w", u.Name, err)
		}
	}

	driver := &ftpd.MainDriver{
		Settings:   &ftpd.Settings{},
		Authorizer: authorizer,
		NewFs:      func(*ftpd.User) (afero.Fs, error) { return afero.NewOsFs(), nil },
	}

	if cfg.EnableTLS {
		tlsConfig, err := loadOrGenerateTLSConfig(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}

		driver.TLSConfig = tlsConfig
	}

	return driver, nil
}

func loadOrGenerateTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if certFile != "" {
		if keyFile == "" {
			keyFile = certFile
		}

		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS cert/key: %w", err)
		}

		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
	}

	cert, err := generateSelfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("generating self-signed cert: %w", err)
	}

	return &tls.Config{Certificates: []tls.Certificate{*cert}}, nil
}

// generateSelfSignedCert mints a short-lived localhost certificate for
// development use, grounded on the teacher's sample driver
// (sample/sample_driver.go's getCertificate), which documents that a real
// deployment should load a certificate from disk instead.
func generateSelfSignedCert() (*tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "localhost",
			Organization: []string{"ftpd"},
		},
		DNSNames:              []string{"localhost"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour * 7),
		BasicConstraintsValid: true,
		IsCA:                  false,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		KeyUsage:              x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}

	var certPEM, keyPEM []byte

	certBuf := pemEncode("CERTIFICATE", der)
	keyBuf := pemEncode("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(priv))
	certPEM = certBuf
	keyPEM = keyBuf

	cert, err := tls.X509KeyPair(certPEM, keyPEM)

	return &cert, err
}

func pemEncode(blockType string, der []byte) []byte {
	block := &pem.Block{Type: blockType, Bytes: der}

	return pem.EncodeToMemory(block)
}
