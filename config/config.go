// Package config loads the small set of static, rarely-changing settings
// this module's CLI wrappers need — the developer-disk-image root, a
// default recv timeout for the Web Inspector proxy, and an optional
// supervision pairing identity — from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of a config file passed to
// ios-webinspector-proxy via -c.
type Config struct {
	// DeveloperImageRoot is the directory devimage.Resolver searches,
	// structured as <root>/<version-name>/*.dmg + *.signature.
	DeveloperImageRoot string `yaml:"developer_image_root"`

	// WebInspectorRecvTimeout bounds each device-side read in the proxy's
	// device->client pump.
	WebInspectorRecvTimeout time.Duration `yaml:"web_inspector_recv_timeout"`

	// SupervisionConfigurationUDID is the configuration UDID that
	// realdevice.PairingIdentity passes to `cfgutil -u <udid> pair` when an
	// idevice* command fails to reach lockdownd. Load only parses it; no
	// command in this module reads it from the file.
	SupervisionConfigurationUDID string `yaml:"supervision_configuration_udid"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
