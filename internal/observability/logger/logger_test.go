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

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_JSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	l := InitLogger(Config{Level: "debug", Format: "json", ServiceName: "tenantguard", Output: &buf, DisableOTel: true})

	l.DebugContext(context.Background(), "decision", OrganizationID("org-1"), Allowed(false), Reason("no matching permission"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "decision", rec["msg"])
	assert.Equal(t, "tenantguard", rec["service"])
	assert.Equal(t, "org-1", rec["organization_id"])
	assert.Equal(t, false, rec["allowed"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestFanoutHandler_RespectsLevels(t *testing.T) {
	var infoBuf, errBuf bytes.Buffer
	h := NewFanoutHandler(
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&errBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	l := slog.New(h)

	l.Info("hello")
	assert.Contains(t, infoBuf.String(), "hello")
	assert.Empty(t, errBuf.String())

	l.Error("boom")
	assert.Contains(t, errBuf.String(), "boom")
}
