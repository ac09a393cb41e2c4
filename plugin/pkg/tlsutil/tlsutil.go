// Package tlsutil loads PEM-encoded certificate chains and private keys
// for the TLS (DoT) and QUIC (DoQ) listeners. This is one of the few
// corners of vdns built directly on the standard library rather than a
// corpus-sourced package — see DESIGN.md for why.
package tlsutil

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadKeyPair reads a certificate chain and private key from PEM files and
// returns a tls.Certificate ready to hang off tls.Config.Certificates.
//
// Key parsing is attempted in order: PKCS#1 (RSA), PKCS#8, then SEC1 (EC);
// the first encoding that parses successfully wins, matching the
// distilled reference implementation's try-RSA-then-PKCS8-then-ECC
// fallback chain.
func LoadKeyPair(certPath, keyPath string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tlsutil: read cert file: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tlsutil: read key file: %w", err)
	}

	chain, err := parseCertChain(certPEM)
	if err != nil {
		return tls.Certificate{}, err
	}

	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return tls.Certificate{}, err
	}

	cert := tls.Certificate{PrivateKey: key}
	for _, c := range chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}
	cert.Leaf = chain[0]
	return cert, nil
}

func parseCertChain(data []byte) ([]*x509.Certificate, error) {
	var chain []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("tlsutil: parse certificate: %w", err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("tlsutil: no certificates found in PEM data")
	}
	return chain, nil
}

func parsePrivateKey(data []byte) (any, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("tlsutil: no PEM block found in key data")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		switch key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey:
			return key, nil
		default:
			return key, nil
		}
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	return nil, fmt.Errorf("tlsutil: key is neither a valid PKCS#1, PKCS#8, nor EC private key")
}
