package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput is returned when input ends before a usable answer
var ErrNoInput = errors.New("no input")

// Confirm asks question until the answer is y/yes or n/no
func Confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s (y/n): ", question)
		response, err := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(response)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, ErrNoInput
			}
			return false, err
		}
		fmt.Fprintln(out, "Please enter y or n")
	}
}

// PromptLine prints label and returns one trimmed line of input
func PromptLine(in io.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	line, err := bufio.NewReader(in).ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" && err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrNoInput
		}
		return "", err
	}
	return line, nil
}

// ReadSecret reads a value without echo when stdin is a terminal, and falls
// back to a plain line read for pipes.
func ReadSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return PromptLine(os.Stdin, os.Stderr, label)
	}
	fmt.Fprintf(os.Stderr, "%s: ", label)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	value := strings.TrimSpace(string(secret))
	if value == "" {
		return "", ErrNoInput
	}
	return value, nil
}
