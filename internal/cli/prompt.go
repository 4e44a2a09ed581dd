package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// promptPassword reads a password from the controlling terminal without echo.
func promptPassword(out io.Writer, username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.Errorf("password required for %s: use --password or %s", username, passwordEnv)
	}
	fmt.Fprintf(out, "Password for %s: ", username)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", errors.Wrap(err, "unable to read password")
	}
	return string(b), nil
}

// promptConfirmer asks a yes/no question for each destructive operation.
// Anything but an explicit yes declines, including end of input.
type promptConfirmer struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

func (p *promptConfirmer) Confirm(_ context.Context, action, target string) (bool, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	warnLabel.Fprintf(p.out, "%s %s? [y/N]: ", action, target)
	line, err := p.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, errors.Wrap(err, "unable to read confirmation")
	}
	if err != nil && line == "" {
		fmt.Fprintln(p.out)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
