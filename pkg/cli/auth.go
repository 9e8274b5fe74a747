package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"
)

const (
	tokenFileName  = "predictor_token"
	tokenFileMode  = 0600
	keyringService = "biasprobe"
	keyringUser    = "predictor_token"
)

func authCmd() *cli.Command {
	var (
		token  string
		remove bool
	)

	return &cli.Command{
		Name:  "auth",
		Usage: "Store the inference service access token in the OS keychain",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "token",
				Usage:       "Access token (read from stdin when not set)",
				Destination: &token,
			},
			&cli.BoolFlag{
				Name:        "clear",
				Usage:       "Remove the stored token",
				Destination: &remove,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := getConfig(ctx)
			if err != nil {
				return err
			}
			w := writer(cmd)

			if remove {
				if err := deleteToken(cfg.Home); err != nil {
					return fmt.Errorf("removing token: %w", err)
				}
				fmt.Fprintln(w, "Token removed")
				return nil
			}

			if token == "" {
				fmt.Fprint(w, "Paste the access token and hit enter:\n>")
				if token, err = readToken(reader(cmd)); err != nil {
					return fmt.Errorf("reading token: %w", err)
				}
			}
			if token == "" {
				return errors.New("token required")
			}

			if err := saveToken(cfg.Home, token); err != nil {
				return fmt.Errorf("saving token: %w", err)
			}
			fmt.Fprintln(w, "Token saved")
			return nil
		},
	}
}

func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func saveToken(home, token string) error {
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return saveTokenFile(home, token)
	}

	// the keychain copy wins, drop any file left from a fallback
	if err := os.Remove(tokenFilePath(home)); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("error removing token file", "error", err)
	}
	return nil
}

// getToken returns the stored token, or an empty string when none was
// saved. A token found only in the file is migrated to the keychain.
func getToken(home string) (string, error) {
	token, err := keyring.Get(keyringService, keyringUser)
	if err == nil && token != "" {
		return token, nil
	}

	token, err = getTokenFile(home)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}

	if migrateErr := keyring.Set(keyringService, keyringUser, token); migrateErr == nil {
		slog.Info("migrated token from file to OS keychain")
		if err := os.Remove(tokenFilePath(home)); err != nil {
			slog.Debug("error removing token file", "error", err)
		}
	}

	return token, nil
}

func deleteToken(home string) error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Warn("error removing token from keychain", "error", err)
	}
	if err := os.Remove(tokenFilePath(home)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func tokenFilePath(home string) string {
	return filepath.Join(home, tokenFileName)
}

func saveTokenFile(home, token string) error {
	return os.WriteFile(tokenFilePath(home), []byte(token), tokenFileMode)
}

func getTokenFile(home string) (string, error) {
	p := tokenFilePath(home)
	b, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("reading token file %s: %w", p, err)
	}
	return strings.TrimSpace(string(b)), nil
}
