package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/tonkeeper/tonkeeper-core/internal/signer"
	"github.com/tonkeeper/tonkeeper-core/internal/vault"
)

var stdin = bufio.NewReader(os.Stdin)

// readPassword reads a line without echo. Non-terminal input is read as a
// plain line so passwords can be piped in scripts.
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return nil, err
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// readNewPassword asks twice and checks the entries match.
func readNewPassword() ([]byte, error) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		vault.ZeroPassword(password)
		return nil, fmt.Errorf("read password: %w", err)
	}
	defer vault.ZeroPassword(confirm)
	if !bytes.Equal(password, confirm) {
		vault.ZeroPassword(password)
		return nil, fmt.Errorf("passwords do not match")
	}
	if len(password) < vault.MinPasswordLength {
		vault.ZeroPassword(password)
		return nil, vault.ErrPasswordTooShort
	}
	return password, nil
}

// passwordPrompt is the signer password source. An empty answer dismisses
// the prompt.
func passwordPrompt(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := readPassword("Password: ")
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, nil
	}
	return pw, nil
}

var _ signer.PasswordFunc = passwordPrompt

// confirm asks a yes/no question; anything but y/yes is no.
func confirm(ctx context.Context, question string) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
