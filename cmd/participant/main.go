// participant shows a check-in QR code in the terminal, counts it down and
// waits for staff to scan it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/pflag"

	"qrattend/internal/client"
	"qrattend/internal/config"
	"qrattend/internal/presence"
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
	var retry bool
	flagSet := pflag.NewFlagSet("participant", pflag.ContinueOnError)
	flagSet.StringVar(&apiURL, "api", cfg.APIURL, "attendance API base URL")
	flagSet.StringVar(&bearer, "token", os.Getenv("QRATTEND_TOKEN"), "participant bearer token")
	flagSet.StringVar(&activityID, "activity", "", "activity to check in to")
	flagSet.BoolVar(&retry, "retry", false, "request a new code when one expires")
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
	poller := presence.NewPoller(api, api, activityID, cfg.PollInterval)
	poller.OnChange = render
	defer poller.Close()

	if err := poller.Request(ctx); err != nil {
		return err
	}

	countdown := time.NewTicker(time.Second)
	defer countdown.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-countdown.C:
				snap := poller.Snapshot()
				if snap.State == presence.TokenShown {
					fmt.Fprintf(os.Stderr, "\rexpires in %s ", presence.FormatRemaining(snap.Remain))
				}
			}
		}
	}()

	for {
		state, err := poller.Wait(ctx)
		if err != nil {
			return nil
		}
		if state == presence.Expired && retry {
			if err := poller.Retry(ctx); err != nil {
				return err
			}
			continue
		}
		if state == presence.Expired {
			return fmt.Errorf("code expired before it was scanned")
		}
		return nil
	}
}

func render(snap presence.Snapshot) {
	switch snap.State {
	case presence.TokenShown:
		qr, err := qrcode.New(snap.Token.Payload, qrcode.Medium)
		if err != nil {
			fmt.Fprintf(os.Stderr, "render qr: %v\n", err)
			fmt.Println(snap.Token.Payload)
			return
		}
		fmt.Print(qr.ToSmallString(false))
		fmt.Printf("valid until %s\n", snap.Token.ExpiresAt.Local().Format("15:04:05"))
	case presence.Confirmed:
		fmt.Println("\nattendance recorded")
	case presence.Expired:
		fmt.Println("\ncode expired")
	}
}
