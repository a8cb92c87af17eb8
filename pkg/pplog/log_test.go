// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package pplog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupDefaultAcceptsKnownLevels(t *testing.T) {
	for _, lvl := range []string{"trace", "debug", "info", "warn", "error", "off"} {
		require.NoError(t, SetupDefault(lvl))
	}
}

func TestBufferedLogsDoNotPanicBeforeSetup(t *testing.T) {
	logger = nil
	bufferLogsBeforeInit = true
	Infof("buffered line %d", 1)
	Debugf("another buffered line")
	require.NoError(t, SetupDefault("info"))
}

func TestWarnfAndErrorfReturnFormattedError(t *testing.T) {
	require.NoError(t, SetupDefault("critical"))
	err := Warnf("item %d failed", 7)
	require.EqualError(t, err, "item 7 failed")

	err = Errorf("step %d: %s", 3, "bad input")
	require.EqualError(t, err, "step 3: bad input")
}
