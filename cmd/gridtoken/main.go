// Command gridtoken mints HS256 bearer tokens accepted by the grid write
// endpoints when server.write_auth is enabled.
package main

import (
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
)

type options struct {
	secret     string
	secretFile string
	issuer     string
	audience   string
	subject    string
	expires    time.Duration
}

func main() {
	subject := "user-1"
	if current, err := user.Current(); err == nil {
		subject = current.Username
	}

	var opts options
	flags := pflag.NewFlagSet("gridtoken", pflag.ExitOnError)
	flags.StringVar(&opts.secret, "secret", "", "HMAC secret (at least 32 bytes)")
	flags.StringVar(&opts.secretFile, "secret-file", "", "Read the HMAC secret from a file")
	flags.StringVar(&opts.issuer, "issuer", "", "JWT issuer (optional)")
	flags.StringVar(&opts.audience, "audience", "gridquery", "JWT audience (comma-separated)")
	flags.StringVar(&opts.subject, "subject", subject, "JWT subject")
	flags.DurationVar(&opts.expires, "expires", time.Hour, "Token lifetime (e.g. 1h)")
	_ = flags.Parse(os.Args[1:])

	signed, err := mint(opts, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	fmt.Println(signed)
}

func mint(opts options, now time.Time) (string, error) {
	secret, err := loadSecret(opts)
	if err != nil {
		return "", err
	}
	if len(secret) < 32 {
		return "", fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}
	if opts.expires <= 0 {
		return "", fmt.Errorf("expires must be positive")
	}

	claims := jwt.RegisteredClaims{
		Issuer:    opts.issuer,
		Subject:   opts.subject,
		Audience:  splitList(opts.audience),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(opts.expires)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func loadSecret(opts options) ([]byte, error) {
	switch {
	case opts.secret != "" && opts.secretFile != "":
		return nil, fmt.Errorf("set only one of --secret or --secret-file")
	case opts.secretFile != "":
		data, err := os.ReadFile(opts.secretFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read secret file: %w", err)
		}
		return []byte(strings.TrimSpace(string(data))), nil
	case opts.secret != "":
		return []byte(opts.secret), nil
	default:
		return nil, fmt.Errorf("a secret is required (--secret or --secret-file)")
	}
}

func splitList(value string) []string {
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
