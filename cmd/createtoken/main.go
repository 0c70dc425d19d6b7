// createtoken mints a bearer token for the attendance API. Useful for local
// runs of the scanner and participant tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"qrattend/internal/auth"
	"qrattend/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	var subject, role string
	ttl := cfg.AccessTTL

	flagSet := pflag.NewFlagSet("createtoken", pflag.ContinueOnError)
	flagSet.StringVar(&subject, "subject", "", "participant or staff id")
	flagSet.StringVar(&role, "role", auth.RoleParticipant, "staff or participant")
	flagSet.DurationVar(&ttl, "ttl", ttl, "token lifetime")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	signed, exp, err := auth.Issue(subject, role, cfg.JWTIssuer, cfg.JWTSigningKey, ttl)
	if err != nil {
		return err
	}
	fmt.Println(signed)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format("2006-01-02 15:04:05 MST"))
	return nil
}
