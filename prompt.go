package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Test seams for the terminal. Tests replace them to feed secrets through
// secretInput without a TTY.
var (
	stdinIsTerminal = func() bool {
		fd := os.Stdin.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	readPassword           = term.ReadPassword
	secretInput  io.Reader = os.Stdin
)

var errSecretConfirm = errors.New("secrets do not match")

// readSecret reads a secret. On a terminal it prompts on stderr without echo;
// otherwise it reads one line from stdin so secrets can be piped in scripts.
func readSecret(prompt string) (string, error) {
	if !stdinIsTerminal() {
		line, err := bufio.NewReader(secretInput).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("reading secret from stdin: %w", err)
		}

		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, prompt)

	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}

	return string(pw), nil
}

// readNewSecret reads a secret that is about to be set. Interactive users
// type it twice.
func readNewSecret() (string, error) {
	secret, err := readSecret("New secret: ")
	if err != nil {
		return "", err
	}

	if secret == "" {
		return "", errors.New("secret must not be empty")
	}

	if !stdinIsTerminal() {
		return secret, nil
	}

	again, err := readSecret("Repeat secret: ")
	if err != nil {
		return "", err
	}

	if again != secret {
		return "", errSecretConfirm
	}

	return secret, nil
}
