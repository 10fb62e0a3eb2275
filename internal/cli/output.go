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

package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-walletcore/pkg/device"
	"github.com/jeremyhahn/go-walletcore/pkg/health"
	"github.com/jeremyhahn/go-walletcore/pkg/migration"
	"github.com/jeremyhahn/go-walletcore/pkg/wallet"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintSession prints a Ready device session
func (p *Printer) PrintSession(s *device.Session) error {
	caps := s.Capabilities()
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"session_id":       s.ID,
			"kind":             s.Kind().String(),
			"state":            s.State().String(),
			"firmware":         caps.Firmware,
			"protocol_version": caps.ProtocolVersion,
			"public_key":       hex.EncodeToString(caps.PublicKey),
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Device Session:\n")
		fmt.Fprintf(p.writer, "  ID:         %s\n", s.ID)
		fmt.Fprintf(p.writer, "  Kind:       %s\n", s.Kind())
		fmt.Fprintf(p.writer, "  State:      %s\n", s.State())
		fmt.Fprintf(p.writer, "  Firmware:   %s\n", caps.Firmware)
		fmt.Fprintf(p.writer, "  Protocol:   %d\n", caps.ProtocolVersion)
		fmt.Fprintf(p.writer, "  Public Key: %s\n", hex.EncodeToString(caps.PublicKey))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintImportResult prints the outcome of an extension import
func (p *Printer) PrintImportResult(result *migration.ImportResult) error {
	switch p.format {
	case OutputFormatJSON:
		info := map[string]interface{}{
			"outcome":  result.Outcome.String(),
			"attempts": result.Attempts,
		}
		if result.Vault != nil {
			info["vault_id"] = result.Vault.ID
			info["cipher"] = string(result.Vault.Cipher)
			info["kdf"] = result.Vault.KDF.Algorithm.String()
		}
		if result.Reason != nil {
			info["reason"] = result.Reason.Error()
		}
		return p.printJSON(info)
	case OutputFormatTable, OutputFormatText:
		switch result.Outcome {
		case migration.Imported:
			fmt.Fprintf(p.writer, "Vault imported:\n")
			fmt.Fprintf(p.writer, "  ID:       %s\n", result.Vault.ID)
			fmt.Fprintf(p.writer, "  Cipher:   %s\n", result.Vault.Cipher)
			fmt.Fprintf(p.writer, "  KDF:      %s\n", result.Vault.KDF.Algorithm)
			fmt.Fprintf(p.writer, "  Attempts: %d\n", result.Attempts)
		case migration.NothingToImport:
			fmt.Fprintln(p.writer, "Nothing to import")
		default:
			fmt.Fprintf(p.writer, "Import failed: %v\n", result.Reason)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintHealth prints component check results
func (p *Printer) PrintHealth(results []health.CheckResult) error {
	overall := health.AggregateStatus(results)
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": overall,
			"checks": results,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Status: %s\n", overall)
		for _, r := range results {
			fmt.Fprintf(p.writer, "  %-16s %-10s %s\n", r.Name, r.Status, r.Message)
			if r.Error != "" {
				fmt.Fprintf(p.writer, "  %-16s %-10s %s\n", "", "", r.Error)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
			"fatal":  wallet.IsFatal(err),
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSignature prints a DER signature (hex encoded)
func (p *Printer) PrintSignature(signature []byte) error {
	encoded := hex.EncodeToString(signature)
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"signature": encoded,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, encoded)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
