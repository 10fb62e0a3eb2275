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
	"github.com/jeremyhahn/go-walletcore/pkg/migration"
	"github.com/spf13/cobra"
)

func newImportCmd(cfg *Config) *cobra.Command {
	var (
		path string
		opts importOptions
	)
	cmd := &cobra.Command{
		Use:   "import --path <export.json>",
		Short: "Import a vault exported by the legacy browser extension",
		Long: `Decrypt a legacy extension export with its passphrase and re-encrypt
the seed into the canonical vault. A missing export is reported as
"nothing to import" and is not an error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, &opts, func(a *app, printer *Printer) error {
				result, err := a.engine.ImportFromExtensionResult(cmd.Context(), path)
				if err != nil && (result == nil || result.Outcome != migration.NothingToImport) {
					return err
				}
				return printer.PrintImportResult(result)
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "path to the extension export")
	cmd.Flags().BoolVar(&opts.askNewPassphrase, "new-passphrase", false,
		"protect the imported vault with a new passphrase")
	cmd.Flags().BoolVar(&opts.replace, "replace", false, "replace an existing vault")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}
