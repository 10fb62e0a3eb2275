// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-walletcore.
//
// go-walletcore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package password

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/jeremyhahn/go-walletcore/pkg/migration"
	"golang.org/x/term"
)

// Prompter reads passphrases. On a terminal input is read without echo;
// otherwise one line is consumed per prompt.
type Prompter struct {
	mu     sync.Mutex
	out    io.Writer
	fd     int
	isTerm bool
	lines  *bufio.Reader
}

// NewPrompter reads from in, switching to no-echo mode when in is a
// terminal. Prompts are written to out.
func NewPrompter(in *os.File, out io.Writer) *Prompter {
	fd := int(in.Fd()) // #nosec G115 - file descriptors fit in int
	if term.IsTerminal(fd) {
		return &Prompter{out: out, fd: fd, isTerm: true}
	}
	return NewLinePrompter(in, out)
}

// NewLinePrompter reads one passphrase per line from in.
func NewLinePrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{out: out, lines: bufio.NewReader(in)}
}

// Read writes label and reads one passphrase. An empty answer returns
// ErrEmptyPassword; exhausted input returns io.EOF.
func (p *Prompter) Read(label string) (*Passphrase, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.out, label)
	raw, err := p.readRaw()
	if p.isTerm {
		fmt.Fprintln(p.out)
	}
	if err != nil {
		memguard.WipeBytes(raw)
		return nil, err
	}
	return New(raw)
}

func (p *Prompter) readRaw() ([]byte, error) {
	if p.isTerm {
		raw, err := term.ReadPassword(p.fd)
		if err != nil {
			return raw, fmt.Errorf("failed to read password: %w", err)
		}
		return raw, nil
	}

	line, err := p.lines.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return line, err
	}
	trimmed := bytes.TrimRight(line, "\r\n")
	if len(trimmed) == len(line) {
		return line, nil
	}
	out := make([]byte, len(trimmed))
	copy(out, trimmed)
	memguard.WipeBytes(line)
	return out, nil
}

// Func adapts the prompter to a migration.PassphraseFunc. Retries show the
// attempt number. The pipeline treats any error, including an empty
// answer, as an aborted prompt.
func (p *Prompter) Func(label string) migration.PassphraseFunc {
	return func(ctx context.Context, attempt int) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prompt := label + ": "
		if attempt > 1 {
			prompt = fmt.Sprintf("%s (attempt %d): ", label, attempt)
		}
		pass, err := p.Read(prompt)
		if err != nil {
			return nil, err
		}
		defer pass.Clear()
		return pass.Bytes(), nil
	}
}
