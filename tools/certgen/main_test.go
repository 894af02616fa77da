package main

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"github.com/atinyakov/SiteKeeper/internal/certgen"
	"github.com/stretchr/testify/require"
)

func leafOf(t *testing.T, dir string) *x509.Certificate {
	t.Helper()
	pair, err := tls.LoadX509KeyPair(filepath.Join(dir, certgen.ServerCertFile), filepath.Join(dir, certgen.ServerKeyFile))
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)
	return leaf
}

func TestRun_FreshBundle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	var out bytes.Buffer

	require.NoError(t, run([]string{"-out", dir, "-hosts", "site.local, 10.0.0.5", "-days", "30"}, &out))
	require.Contains(t, out.String(), "-ca "+filepath.Join(dir, certgen.CAFile))

	leaf := leafOf(t, dir)
	require.Equal(t, []string{"site.local"}, leaf.DNSNames)
	require.Equal(t, "10.0.0.5", leaf.IPAddresses[0].String())

	caPEM, err := os.ReadFile(filepath.Join(dir, certgen.CAFile))
	require.NoError(t, err)
	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(caPEM))
	_, err = leaf.Verify(x509.VerifyOptions{DNSName: "site.local", Roots: pool})
	require.NoError(t, err)
}

func TestRun_ReissueFromExistingCA(t *testing.T) {
	caDir := t.TempDir()
	require.NoError(t, run([]string{"-out", caDir}, &bytes.Buffer{}))

	dir := t.TempDir()
	var out bytes.Buffer
	err := run([]string{
		"-out", dir,
		"-hosts", "other.local",
		"-ca-cert", filepath.Join(caDir, certgen.CAFile),
		"-ca-key", filepath.Join(caDir, certgen.CAKeyFile),
	}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "other.local")

	_, err = os.Stat(filepath.Join(dir, certgen.CAFile))
	require.True(t, os.IsNotExist(err))

	ca, err := certgen.LoadAuthority(filepath.Join(caDir, certgen.CAFile), filepath.Join(caDir, certgen.CAKeyFile))
	require.NoError(t, err)
	require.NoError(t, leafOf(t, dir).CheckSignatureFrom(ca.Cert))
}

func TestRun_BadFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no hosts", []string{"-hosts", " , "}},
		{"zero days", []string{"-days", "0"}},
		{"ca cert without key", []string{"-ca-cert", "ca.crt"}},
		{"unknown flag", []string{"-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"-out", t.TempDir()}, tt.args...)
			require.Error(t, run(args, &bytes.Buffer{}))
		})
	}
}
