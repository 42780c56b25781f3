package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "developer_image_root: /Users/me/DeveloperDiskImages\n" +
		"web_inspector_recv_timeout: 2s\n" +
		"supervision_configuration_udid: ABCD-1234\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/Users/me/DeveloperDiskImages", cfg.DeveloperImageRoot)
	require.Equal(t, 2*time.Second, cfg.WebInspectorRecvTimeout)
	require.Equal(t, "ABCD-1234", cfg.SupervisionConfigurationUDID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
