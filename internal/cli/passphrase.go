package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// EnvPassphrase holds a backup passphrase for unattended runs. It is unset
// as soon as it has been read.
const EnvPassphrase = "SKM_PASSPHRASE"

var (
	// ErrNoPassphrase indicates no passphrase source was available.
	ErrNoPassphrase = errors.New("no passphrase: use a terminal, --passphrase-stdin, --passphrase-file or " + EnvPassphrase)
	// ErrPassphraseMismatch indicates the confirmation did not match.
	ErrPassphraseMismatch = errors.New("passphrases do not match")
	// ErrEmptyPassphrase indicates an empty passphrase was given.
	ErrEmptyPassphrase = errors.New("passphrase cannot be empty")
)

// Terminal is the console used for prompts.
type Terminal struct {
	In  io.Reader
	Out io.Writer

	// Fd is the file descriptor of In, used for hidden input.
	Fd int

	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)
	buf          *bufio.Reader
}

// reader returns one buffered reader over In for all line reads, so that
// consecutive reads never lose buffered input.
func (t *Terminal) reader() *bufio.Reader {
	if t.buf == nil {
		t.buf = bufio.NewReader(t.In)
	}
	return t.buf
}

// NewTerminal returns a Terminal reading from in and prompting on out.
// Hidden input is only available when in is a terminal *os.File.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{In: in, Out: out, Fd: -1}
	if f, ok := in.(*os.File); ok {
		t.Fd = int(f.Fd())
		t.isTerminal = term.IsTerminal
		t.readPassword = term.ReadPassword
	}
	return t
}

// Interactive reports whether In is a terminal.
func (t *Terminal) Interactive() bool {
	return t.isTerminal != nil && t.isTerminal(t.Fd)
}

// PassphraseOptions selects where a passphrase comes from.
type PassphraseOptions struct {
	// Stdin reads the first line of standard input.
	Stdin bool

	// File reads the first line of a file.
	File string

	// Confirm asks twice when prompting interactively.
	Confirm bool

	// Prompt is shown before hidden input.
	Prompt string
}

// ReadPassphrase returns a passphrase from, in order: the file, stdin, the
// SKM_PASSPHRASE environment variable, or an interactive hidden prompt.
func (t *Terminal) ReadPassphrase(opts PassphraseOptions) ([]byte, error) {
	var (
		pass []byte
		err  error
	)
	switch {
	case opts.File != "":
		pass, err = readFirstLineFile(opts.File)
	case opts.Stdin:
		pass, err = readLine(t.reader())
	case os.Getenv(EnvPassphrase) != "":
		pass = []byte(os.Getenv(EnvPassphrase))
		_ = os.Unsetenv(EnvPassphrase)
	case t.Interactive():
		pass, err = t.prompt(opts)
	default:
		return nil, ErrNoPassphrase
	}
	if err != nil {
		return nil, err
	}
	if len(pass) == 0 {
		return nil, ErrEmptyPassphrase
	}
	return pass, nil
}

func (t *Terminal) prompt(opts PassphraseOptions) ([]byte, error) {
	label := opts.Prompt
	if label == "" {
		label = "Passphrase"
	}
	fmt.Fprintf(t.Out, "%s: ", label)
	first, err := t.readPassword(t.Fd)
	fmt.Fprintln(t.Out)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if !opts.Confirm {
		return first, nil
	}

	fmt.Fprint(t.Out, "Confirm passphrase: ")
	second, err := t.readPassword(t.Fd)
	fmt.Fprintln(t.Out)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if !bytes.Equal(first, second) {
		return nil, ErrPassphraseMismatch
	}
	return first, nil
}

func readFirstLineFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open passphrase file: %w", err)
	}
	defer f.Close()
	return readLine(bufio.NewReader(f))
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r")), nil
}

// Confirm asks a y/N question. Anything but y or yes is a no, and so is a
// read error.
func (t *Terminal) Confirm(question string) bool {
	fmt.Fprintf(t.Out, "%s [y/N]: ", question)
	line, err := t.reader().ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
