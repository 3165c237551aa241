package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"jobmail-engine/internal/config"
)

const (
	// KeyringService groups the engine's secrets in the OS keychain.
	KeyringService = "jobmail"
)

var ErrPasswordNotFound = errors.New("password not found (set it in keychain or via JOBMAIL_* env)")

// Resolve returns explicit when set, else the keyring entry for account.
func Resolve(explicit, account string) (string, error) {
	if pw := strings.TrimSpace(explicit); pw != "" {
		return pw, nil
	}
	if strings.TrimSpace(account) != "" {
		pw, err := keyring.Get(KeyringService, account)
		if err == nil && strings.TrimSpace(pw) != "" {
			return pw, nil
		}
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("keyring lookup %s: %w", account, err)
		}
	}
	return "", ErrPasswordNotFound
}

func GetIMAPPassword(cfg config.Config) (string, error) {
	return Resolve(cfg.Mailbox.Password, IMAPKeyringAccount(cfg))
}

// GetSMTPPassword is optional: an SMTP relay without auth is allowed.
func GetSMTPPassword(cfg config.Config) string {
	if cfg.Notify.SMTP.Username == "" {
		return ""
	}
	pw, _ := Resolve(cfg.Notify.SMTP.Password, SMTPKeyringAccount(cfg))
	return pw
}

func SetPassword(account, password string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	return keyring.Set(KeyringService, account, password)
}

func DeletePassword(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, account)
}

func IMAPKeyringAccount(cfg config.Config) string {
	return fmt.Sprintf("jobmail:imap:%s@%s", cfg.Mailbox.Username, cfg.Mailbox.Host)
}

func SMTPKeyringAccount(cfg config.Config) string {
	return fmt.Sprintf("jobmail:smtp:%s@%s", cfg.Notify.SMTP.Username, cfg.Notify.SMTP.Host)
}
