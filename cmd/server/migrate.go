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

	"github.com/spf13/cobra"

	"github.com/opentrusty/tenantguard/internal/config"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		Long:  "Apply pending PostgreSQL migrations. Applied versions are recorded and skipped on later runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Backend != config.BackendPostgres {
				return fmt.Errorf("migrate requires the %s backend, configured backend is %q", config.BackendPostgres, cfg.Store.Backend)
			}

			db, err := openPostgres(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return applyMigrations(ctx, db)
		},
	}
}
