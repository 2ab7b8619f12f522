// Package credentials reads and writes the per-user netrc-shaped file
// that holds Source H and Source I's client id and bearer token.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sysbot/go-netrc"
)

// Credentials is one machine's client id (netrc login) and bearer token
// (netrc password).
type Credentials struct {
	ClientID string
	Token    string
}

// Load reads the netrc file at path and returns the credentials stored
// under machine, if any. A missing file or missing machine entry is not
// an error; ok is false and the caller falls back to unauthenticated
// requests.
func Load(path, machine string) (creds Credentials, ok bool, err error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Credentials{}, false, nil
	}

	if err != nil {
		return Credentials{}, false, fmt.Errorf("credentials: opening %q: %w", path, err)
	}
	defer f.Close()

	n, err := netrc.Parse(f)
	if err != nil {
		return Credentials{}, false, fmt.Errorf("credentials: parsing %q: %w", path, err)
	}

	m := n.FindMachine(machine)
	if m == nil {
		return Credentials{}, false, nil
	}

	return Credentials{ClientID: m.Login, Token: m.Password}, true, nil
}

// Save writes creds for machine into the netrc file at path, replacing
// any existing entry for that machine and preserving every other
// machine already in the file. The write is atomic: a temp file in the
// same directory followed by a rename, mirroring the local store's
// secret-key write.
func Save(path, machine string, creds Credentials) error {
	existing := map[string]Credentials{}

	if f, err := os.Open(path); err == nil {
		n, parseErr := netrc.Parse(f)
		f.Close()

		if parseErr == nil {
			for _, m := range n.Machines {
				existing[m.Name] = Credentials{ClientID: m.Login, Token: m.Password}
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("credentials: opening %q: %w", path, err)
	}

	existing[machine] = creds

	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("credentials: creating %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("credentials: creating temp file: %w", err)
	}

	ok := false
	defer func() {
		if !ok {
			os.Remove(tmp.Name())
		}
	}()

	for name, c := range existing {
		if _, err := fmt.Fprintf(tmp, "machine %s login %s password %s\n", name, c.ClientID, c.Token); err != nil {
			tmp.Close()

			return fmt.Errorf("credentials: writing temp file: %w", err)
		}
	}

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()

		return fmt.Errorf("credentials: chmod temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credentials: closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("credentials: renaming into %q: %w", path, err)
	}

	ok = true

	return nil
}
