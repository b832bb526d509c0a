package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// EnvPIN supplies the PIN to non-interactive runs.
const EnvPIN = "PINVAULT_PIN"

// ErrPINMismatch is returned when the confirmation differs from the first entry.
var ErrPINMismatch = errors.New("PINs do not match")

// Prompter reads PINs, confirmations and note bodies. PINs are read
// without echo when the input is a terminal.
type Prompter struct {
	in        io.Reader
	out       io.Writer
	reader    *bufio.Reader
	lookupEnv func(string) (string, bool)
}

// NewPrompter returns a Prompter reading from in and prompting on out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:        in,
		out:       out,
		reader:    bufio.NewReader(in),
		lookupEnv: os.LookupEnv,
	}
}

func (p *Prompter) terminalFd() (int, bool) {
	f, ok := p.in.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// IsInteractive reports whether input comes from a terminal.
func (p *Prompter) IsInteractive() bool {
	_, ok := p.terminalFd()
	return ok
}

func (p *Prompter) readSecret(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if fd, ok := p.terminalFd(); ok {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read PIN: %w", err)
		}
		return string(b), nil
	}
	return p.ReadLine()
}

// ReadPIN returns $PINVAULT_PIN if set, otherwise prompts for a PIN.
func (p *Prompter) ReadPIN(prompt string) (string, error) {
	if pin, ok := p.lookupEnv(EnvPIN); ok {
		return pin, nil
	}
	return p.readSecret(prompt)
}

// ReadNewPIN prompts for a new PIN twice. It never consults $PINVAULT_PIN.
func (p *Prompter) ReadNewPIN(prompt string) (string, error) {
	pin1, err := p.readSecret(prompt)
	if err != nil {
		return "", err
	}
	pin2, err := p.readSecret("Confirm PIN: ")
	if err != nil {
		return "", err
	}
	if pin1 != pin2 {
		return "", ErrPINMismatch
	}
	return pin1, nil
}

// Confirm asks a yes/no question. Anything but y or yes is no.
func (p *Prompter) Confirm(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	answer, err := p.ReadLine()
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

// ReadLine reads one line, trimming the line ending. EOF after a partial
// line is not an error.
func (p *Prompter) ReadLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if err == io.EOF && line == "" {
		return "", io.ErrUnexpectedEOF
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// ReadBody reads the rest of the input as a note body, dropping a single
// trailing newline.
func (p *Prompter) ReadBody() (string, error) {
	b, err := io.ReadAll(p.reader)
	if err != nil {
		return "", fmt.Errorf("failed to read note body: %w", err)
	}
	body := strings.TrimSuffix(string(b), "\n")
	return strings.TrimSuffix(body, "\r"), nil
}
