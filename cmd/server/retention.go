// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opentrusty/tenantguard/internal/audit"
)

func newRetentionCommand() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Trim every organization's audit trail once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.shutdownTracer(ctx)
			defer a.closeStores()

			if keep <= 0 {
				keep = a.cfg.Audit.RetentionCap
			}
			n, err := audit.NewRetention(a.stores.Audit, keep).RunOnce(ctx)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "audit retention completed", slog.Int64("deleted", n))
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "entries to keep per organization (defaults to audit.retention_cap)")
	return cmd
}
