package main

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

// resolvePassphrase returns the passphrase for a key. A non-empty envVar
// wins; otherwise the user is prompted on the terminal. Non-interactive
// runs without an environment override fail rather than hang.
func resolvePassphrase(envVar, prompt string) ([]byte, error) {
	if envVar != "" {
		value, ok := os.LookupEnv(envVar)
		if !ok {
			return nil, fmt.Errorf("environment variable %s is not set", envVar)
		}
		return []byte(value), nil
	}
	return promptPassphrase(prompt)
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return nil, fmt.Errorf("stdin is not a terminal; use --passphrase-env to supply the passphrase")
	}
	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return passphrase, nil
}

// promptNewPassphrase reads and confirms a passphrase for key encryption.
func promptNewPassphrase() ([]byte, error) {
	pass1, err := promptPassphrase("Enter passphrase: ")
	if err != nil {
		return nil, err
	}
	pass2, err := promptPassphrase("Confirm passphrase: ")
	if err != nil {
		return nil, err
	}
	if string(pass1) != string(pass2) {
		return nil, fmt.Errorf("passphrases do not match")
	}
	if len(pass1) == 0 {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	return pass1, nil
}
