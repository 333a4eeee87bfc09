package config

// Package config provides a reusable loader for node configuration files and
// environment variables, versioned so that applications can depend on a
// stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"matter-core/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a matterd node. It mirrors
// the structure of the YAML files under cmd/config.
type Config struct {
	Fabric struct {
		Index             uint8  `mapstructure:"index" json:"index"`
		NodeID            uint64 `mapstructure:"node_id" json:"node_id"`
		FabricID          uint64 `mapstructure:"fabric_id" json:"fabric_id"`
		NOCFile           string `mapstructure:"noc_file" json:"noc_file"`
		ICACFile          string `mapstructure:"icac_file" json:"icac_file"`
		SignerFile        string `mapstructure:"signer_file" json:"signer_file"`
		RootPublicKeyFile string `mapstructure:"root_public_key_file" json:"root_public_key_file"`
		IPKFile           string `mapstructure:"ipk_file" json:"ipk_file"`
		ResumeDBPath      string `mapstructure:"resume_db_path" json:"resume_db_path"`
	} `mapstructure:"fabric" json:"fabric"`

	Discovery struct {
		EnableIPv4       bool   `mapstructure:"enable_ipv4" json:"enable_ipv4"`
		InterfaceOverride string `mapstructure:"interface_override" json:"interface_override"`
		BrowseTimeoutSec int    `mapstructure:"browse_timeout_sec" json:"browse_timeout_sec"`
	} `mapstructure:"discovery" json:"discovery"`

	Transport struct {
		Port          int `mapstructure:"port" json:"port"`
		ReceiveQueue  int `mapstructure:"receive_queue" json:"receive_queue"`
	} `mapstructure:"transport" json:"transport"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the MATTERD_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("MATTERD_ENV", ""))
}
