// Package passphrase resolves the operator keystore passphrase.
package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source reads the passphrase from an environment variable, falling back to
// an interactive prompt. The first successful result is cached.
type Source struct {
	envVar string
	lookup func(string) (string, bool)

	once  sync.Once
	value string
	err   error
}

func NewSource(envVar string) *Source {
	return &Source{envVar: strings.TrimSpace(envVar), lookup: os.LookupEnv}
}

// Get returns the passphrase. A set-but-blank variable is an error rather
// than an unprotected keystore.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := s.lookup(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}
		s.value, s.err = prompt(s.envVar)
	})
	return s.value, s.err
}

func prompt(envVar string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if envVar != "" {
			return "", fmt.Errorf("operator keystore passphrase required; set %s or run interactively", envVar)
		}
		return "", errors.New("operator keystore passphrase required and no terminal available")
	}
	fmt.Fprint(os.Stderr, "Enter operator keystore passphrase: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", errors.New("operator keystore passphrase cannot be empty")
	}
	return string(raw), nil
}
