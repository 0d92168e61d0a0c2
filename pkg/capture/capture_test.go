// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmcp/jfy-monitor/pkg/jfy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	request := jfy.QueryNormalInfoRequest(2)
	w.Record("/dev/ttyUSB0", true, request)
	w.Record("/dev/ttyUSB0", false, []byte{0xA5, 0xA5})
	require.NoError(t, w.Err())

	records, err := ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "/dev/ttyUSB0", records[0].Device)
	assert.True(t, records[0].Outbound)
	assert.Equal(t, request, records[0].Data)
	assert.False(t, records[1].Outbound)
	assert.False(t, records[0].Time.IsZero())
	assert.False(t, records[1].Time.Before(records[0].Time))
}

func TestCreateAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traffic.cbor")

	for i := 0; i < 2; i++ {
		w, err := Create(path)
		require.NoError(t, err)
		w.Record("dev", true, []byte{byte(i)})
		require.NoError(t, w.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := ReadAll(f)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []byte{1}, records[1].Data)
}

func TestReaderRejectsGarbage(t *testing.T) {
	_, err := ReadAll(bytes.NewReader([]byte{0xFF, 0x00, 0x13}))
	assert.Error(t, err)
}
