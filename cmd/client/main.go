// Package main runs the SiteKeeper command-line client: an interactive shell
// over the local store that keeps working offline and synchronizes queued
// changes when the server becomes reachable.
package main

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atinyakov/SiteKeeper/internal/client/connectivity"
	"github.com/atinyakov/SiteKeeper/internal/client/data"
	"github.com/atinyakov/SiteKeeper/internal/client/localstore"
	"github.com/atinyakov/SiteKeeper/internal/client/reconcile"
	"github.com/atinyakov/SiteKeeper/internal/client/remote"
	"github.com/atinyakov/SiteKeeper/internal/config"
	"github.com/atinyakov/SiteKeeper/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	version   string
	buildDate string
)

func main() {
	options, err := config.ParseClient(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if options.ShowVersion {
		fmt.Printf("SiteKeeper Client\nVersion: %s\nBuild Date: %s\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		return
	}

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	httpClient, err := remote.NewHTTPClient(options.CAFile, 30*time.Second)
	if err != nil {
		zapLogger.Fatal("cannot configure http client", zap.Error(err))
	}
	client, err := remote.New(options.BaseURL, httpClient)
	if err != nil {
		zapLogger.Fatal("invalid server url", zap.Error(err))
	}

	store, err := localstore.Open(options.Store, options.DataDir)
	if err != nil {
		zapLogger.Fatal("cannot open local store", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := loadSession(ctx, store)
	if err != nil {
		zapLogger.Fatal("cannot read session", zap.Error(err))
	}
	if options.Token != "" {
		sess.Token = options.Token
	}
	client.SetToken(sess.Token)

	out := newConsole(os.Stdout)
	conn := connectivity.NewSignal(false)
	mirror := &connectivity.Mirror{}
	rec := reconcile.New(client, store, mirror, out, zapLogger)
	orch := reconcile.NewOrchestrator(conn, mirror, rec, out, zapLogger)
	prober := &connectivity.Prober{
		Signal:   conn,
		Check:    client,
		Interval: options.ProbeInterval,
		Log:      zapLogger,
	}
	env := data.NewEnv(client, store, rec, sess.Login, zapLogger)

	orch.Start(ctx)
	go prober.Run(ctx)

	sh := &shell{
		ctx:      ctx,
		out:      out,
		in:       bufio.NewScanner(os.Stdin),
		password: readPassword,
		client:   client,
		store:    store,
		conn:     conn,
		prober:   prober,
		orch:     orch,
		env:      env,
		hooks:    data.NewHooks(env),
		session:  sess,
	}
	sh.run()

	stop()
	orch.Stop()
}

// readPassword reads a line without echo when stdin is a terminal.
func readPassword(in *bufio.Scanner) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		return string(b), err
	}
	if !in.Scan() {
		return "", fmt.Errorf("no password given")
	}
	return in.Text(), nil
}
