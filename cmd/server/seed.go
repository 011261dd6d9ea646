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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opentrusty/tenantguard/internal/observability/logger"
)

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the role catalog and the bootstrap super-admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.shutdownTracer(ctx)

			// engine.New seeds the default roles.
			e, err := a.newEngine(ctx)
			if err != nil {
				a.closeStores()
				return fmt.Errorf("failed to seed roles: %w", err)
			}
			defer e.Close()

			if err := a.bootstrap(ctx, e); err != nil {
				return fmt.Errorf("bootstrap failed: %w", err)
			}

			roles, err := e.ListRoles(ctx)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "seed completed", slog.Int("roles", len(roles)), logger.Component("seed"))
			return nil
		},
	}
}
