// scanner is the staff check-in tool. Each line read from stdin is treated as
// one decoded QR payload, typically piped from a camera decoder such as
// zbarcam --raw.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"qrattend/internal/client"
	"qrattend/internal/config"
	"qrattend/internal/scan"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	var apiURL, bearer, activityID string
	flagSet := pflag.NewFlagSet("scanner", pflag.ContinueOnError)
	flagSet.StringVar(&apiURL, "api", cfg.APIURL, "attendance API base URL")
	flagSet.StringVar(&bearer, "token", os.Getenv("QRATTEND_TOKEN"), "staff bearer token")
	flagSet.StringVar(&activityID, "activity", "", "activity being scanned")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if activityID == "" {
		return fmt.Errorf("--activity is required")
	}
	if bearer == "" {
		return fmt.Errorf("--token or QRATTEND_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.New(apiURL, bearer)
	if err := api.Health(ctx); err != nil {
		return fmt.Errorf("api not reachable: %w", err)
	}

	session := scan.NewSession(api, activityID)
	fmt.Fprintf(os.Stderr, "scanning for %s, one payload per line\n", activityID)

	var last string
	lines := bufio.NewScanner(os.Stdin)
	for lines.Scan() {
		payload := strings.TrimSpace(lines.Text())
		if payload == "" {
			continue
		}
		// Camera decoders repeat the same code every frame while it is in
		// view; ignore repeats until the previous result is dismissed.
		if _, showing := session.Current(); showing && payload == last {
			continue
		}
		res, handled := session.Handle(ctx, payload)
		if !handled {
			continue
		}
		last = payload
		mark := "OK "
		if res.Record == nil {
			mark = "ERR"
			if res.Retryable {
				mark = "RETRY"
			}
		}
		fmt.Printf("%s %s %s\n", res.At.Format("15:04:05"), mark, res.Message)
		if ctx.Err() != nil {
			break
		}
	}
	return lines.Err()
}
