package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/cdetools/cdecao/util"
)

// See example_config.toml
type Config struct {
	CdEDB struct {
		Url   string `toml:"url"`
		Token string `toml:"token"`
	} `toml:"cdedb"`
	Webhook struct {
		Host string `toml:"host"`
	} `toml:"webhook"`
	Dirs struct {
		Exports string `toml:"exports"`
	} `toml:"dirs"`
	Bins struct {
		Cdecao string `toml:"cdecao"`
	} `toml:"bins"`
	Database struct {
		Host     string `toml:"host"`
		Port     string `toml:"port"`
		User     string `toml:"user"`
		Password string `toml:"password"`
		Database string `toml:"database"`
	} `toml:"database"`
}

var conf *Config

func GetConfig() *Config {
	if conf != nil {
		// Already loaded
		return conf
	}

	configPath := os.Getenv("CDECAO_CONFIG_PATH") // For debugging
	if configPath == "" {
		// Default well known path
		configPath = "/etc/cdecao/config.toml"
	}
	_, err := toml.DecodeFile(configPath, &conf)
	if err != nil {
		util.Die("failed to decode config (%s): %v", configPath, err)
	}
	return conf
}
