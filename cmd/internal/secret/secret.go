// Package secret resolves operator secrets such as the indexer API key from
// the environment or an interactive terminal prompt.
package secret

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrNoTerminal is returned when the secret is not in the environment and
// stdin cannot be prompted.
var ErrNoTerminal = errors.New("secret: no terminal available")

// Source lazily resolves a secret from an environment variable or by
// prompting the operator. The value is cached after the first retrieval.
type Source struct {
	label  string
	envVar string

	lookupEnv    func(string) (string, bool)
	isTerminal   func() bool
	readPassword func() ([]byte, error)
	prompt       io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a source that checks envVar before prompting for label
// on stderr.
func NewSource(label, envVar string) *Source {
	fd := int(os.Stdin.Fd())
	return &Source{
		label:        strings.TrimSpace(label),
		envVar:       strings.TrimSpace(envVar),
		lookupEnv:    os.LookupEnv,
		isTerminal:   func() bool { return term.IsTerminal(fd) },
		readPassword: func() ([]byte, error) { return term.ReadPassword(fd) },
		prompt:       os.Stderr,
	}
}

// Get returns the cached secret or resolves it on first use. Whitespace-only
// values are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := s.lookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = strings.TrimSpace(value)
				return
			}
		}

		if !s.isTerminal() {
			if s.envVar != "" {
				s.err = fmt.Errorf("%w: set %s to provide the %s", ErrNoTerminal, s.envVar, s.label)
			} else {
				s.err = fmt.Errorf("%w: %s required", ErrNoTerminal, s.label)
			}
			return
		}

		fmt.Fprintf(s.prompt, "Enter %s: ", s.label)
		raw, err := s.readPassword()
		fmt.Fprintln(s.prompt)
		if err != nil {
			s.err = fmt.Errorf("read %s: %w", s.label, err)
			return
		}

		value := strings.TrimSpace(string(raw))
		if value == "" {
			s.err = fmt.Errorf("%s cannot be empty", s.label)
			return
		}
		s.value = value
	})

	return s.value, s.err
}
