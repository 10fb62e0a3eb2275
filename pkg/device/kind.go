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

package device

import (
	"fmt"
	"strings"
)

// Kind identifies a supported hardware wallet model.
type Kind int

const (
	KindUnknown Kind = iota
	LedgerS
	LedgerX
	TrezorOne
	TrezorT
)

var kindNames = map[Kind]string{
	LedgerS:   "LedgerS",
	LedgerX:   "LedgerX",
	TrezorOne: "TrezorOne",
	TrezorT:   "TrezorT",
}

// Kinds lists every supported model.
func Kinds() []Kind {
	return []Kind{LedgerS, LedgerX, TrezorOne, TrezorT}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// ParseKind accepts "LedgerX", "ledger-x", "ledger_x" and similar spellings.
func ParseKind(s string) (Kind, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(s))
	for k, name := range kindNames {
		if strings.ToLower(name) == norm {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}
