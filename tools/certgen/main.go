// Package main writes development TLS material for SiteKeeper: a private CA
// and a server certificate for the given hosts. Pass -ca-cert and -ca-key to
// re-issue only the server certificate from an existing CA.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atinyakov/SiteKeeper/internal/certgen"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("certgen", flag.ContinueOnError)
	fs.SetOutput(out)
	dir := fs.String("out", "certs", "output directory")
	hosts := fs.String("hosts", "localhost,127.0.0.1", "comma-separated server host names and IPs")
	days := fs.Int("days", 365, "server certificate validity in days")
	caCert := fs.String("ca-cert", "", "existing CA certificate")
	caKey := fs.String("ca-key", "", "existing CA private key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var names []string
	for _, h := range strings.Split(*hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			names = append(names, h)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no hosts given")
	}
	if *days <= 0 {
		return fmt.Errorf("days must be positive, got %d", *days)
	}
	validity := time.Duration(*days) * 24 * time.Hour

	switch {
	case *caCert != "" && *caKey != "":
		ca, err := certgen.LoadAuthority(*caCert, *caKey)
		if err != nil {
			return err
		}
		if err := certgen.WriteServer(*dir, ca, names, validity); err != nil {
			return err
		}
		fmt.Fprintf(out, "server certificate for %s written to %s\n", strings.Join(names, ", "), *dir)
	case *caCert != "" || *caKey != "":
		return fmt.Errorf("-ca-cert and -ca-key must be given together")
	default:
		if _, err := certgen.WriteBundle(*dir, names, validity); err != nil {
			return err
		}
		fmt.Fprintf(out, "CA and server certificate for %s written to %s\n", strings.Join(names, ", "), *dir)
		fmt.Fprintf(out, "start the server with -tls-cert %s -tls-key %s\n",
			filepath.Join(*dir, certgen.ServerCertFile), filepath.Join(*dir, certgen.ServerKeyFile))
		fmt.Fprintf(out, "point the client at it with -ca %s\n", filepath.Join(*dir, certgen.CAFile))
	}
	return nil
}
