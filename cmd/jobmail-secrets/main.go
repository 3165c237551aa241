// Command jobmail-secrets stores or removes the IMAP and SMTP passwords in
// the OS keyring, under the accounts the engine reads them from.
//
//	jobmail-secrets set imap < password.txt
//	jobmail-secrets delete smtp
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"jobmail-engine/internal/config"
	"jobmail-engine/internal/secrets"
)

const usage = "usage: jobmail-secrets set|delete imap|smtp (set reads the password from stdin)"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	cfg, _, err := env.LoadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	account, err := accountFor(cfg, args[1])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	switch args[0] {
	case "set":
		pw, err := readPassword(stdin)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		if err := secrets.SetPassword(account, pw); err != nil {
			fmt.Fprintf(stderr, "store %s: %v\n", account, err)
			return 1
		}
		fmt.Fprintf(stdout, "stored %s\n", account)
	case "delete":
		if err := secrets.DeletePassword(account); err != nil {
			fmt.Fprintf(stderr, "delete %s: %v\n", account, err)
			return 1
		}
		fmt.Fprintf(stdout, "deleted %s\n", account)
	default:
		fmt.Fprintln(stderr, usage)
		return 2
	}
	return 0
}

func accountFor(cfg config.Config, which string) (string, error) {
	switch strings.ToLower(which) {
	case "imap":
		if cfg.Mailbox.Host == "" || cfg.Mailbox.Username == "" {
			return "", errors.New("mailbox.host and mailbox.username must be set first")
		}
		return secrets.IMAPKeyringAccount(cfg), nil
	case "smtp":
		if cfg.Notify.SMTP.Host == "" || cfg.Notify.SMTP.Username == "" {
			return "", errors.New("notify.smtp.host and notify.smtp.username must be set first")
		}
		return secrets.SMTPKeyringAccount(cfg), nil
	}
	return "", fmt.Errorf("unknown secret %q (want imap or smtp)", which)
}

// readPassword takes the first line of r, without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return "", errors.New("no password on stdin")
	}
	return line, nil
}
