// Copyright (c) 2022-present, DiceDB contributors
// All rights reserved. Licensed under the BSD 3-Clause License. See LICENSE file in the project root for full license information.

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	CouchDBVersion = "-"
)

// init initializes the CouchDBVersion variable by reading the
// VERSION file from the project root.
// This function runs automatically when the package is imported.
func init() {
	// config.go lives in config/, so the project root is one directory up.
	_, currentFile, _, _ := runtime.Caller(0) //nolint:dogsled
	projectRoot := filepath.Dir(filepath.Dir(currentFile))

	version, err := os.ReadFile(filepath.Join(projectRoot, "VERSION"))
	if err != nil {
		slog.Error("could not read the version file", slog.String("error", err.Error()))
		os.Exit(1)
	}
	CouchDBVersion = strings.TrimSpace(string(version))

	// Ensure Config is non-nil with default values for tests and simple runs
	if Config == nil {
		Config = initDefaultConfig()
	}
}

var Config *CouchConfig

type CouchConfig struct {
	NodeName string `mapstructure:"node-name" default:"" description:"this node's cluster name; defaults to the hostname"`

	LogLevel string `mapstructure:"log-level" default:"info" description:"the log level"`

	NATSURL string `mapstructure:"nats-url" default:"nats://127.0.0.1:4222" description:"url of the cluster message bus"`

	MetricsPort int `mapstructure:"metrics-port" default:"9361" description:"the port serving /metrics"`

	// Sync scheduler tunables. Delay bounds how long a changed shard may
	// wait before its push; frequency is the debounce window rotation tick.
	SyncDelayMillis     int `mapstructure:"sync-delay-ms" default:"5000" description:"max delay (ms) before a changed shard is pushed to its peers"`
	SyncFrequencyMillis int `mapstructure:"sync-frequency-ms" default:"500" description:"interval (ms) between debounce window rotations"`

	// Control databases that are pushed immediately instead of debounced.
	NodesDB  string `mapstructure:"nodes-db" default:"_nodes" description:"name of the node list database"`
	ShardsDB string `mapstructure:"shards-db" default:"_dbs" description:"name of the shard map database"`
	UsersDB  string `mapstructure:"users-db" default:"_users" description:"name of the user/auth database"`

	FeedSubject       string `mapstructure:"feed-subject" default:"couch.db.updates" description:"message bus subject carrying database update events"`
	ShardMapSubject   string `mapstructure:"shardmap-subject" default:"couch.shardmap.updates" description:"message bus subject carrying shard map placement documents"`
	PushSubjectPrefix string `mapstructure:"push-subject-prefix" default:"couch.sync.push" description:"message bus subject prefix for per-node push requests"`

	HeartbeatIntervalMillis  int `mapstructure:"heartbeat-interval-ms" default:"1000" description:"interval (ms) between membership heartbeats"`
	NodeTTLMillis            int `mapstructure:"node-ttl-ms" default:"5000" description:"time (ms) after which a silent node is considered dead"`
	ResubscribeBackoffMillis int `mapstructure:"resubscribe-backoff-ms" default:"5000" description:"delay (ms) before retrying a lost feed subscription"`

	ReplicaCount int `mapstructure:"replica-count" default:"3" description:"replicas per shard range used for derived placement"`
}

func Load(flags *pflag.FlagSet) {
	configureMetadataDir()
	viper.SetConfigType("yaml")
	viper.AddConfigPath(MetadataDir)
	viper.SetConfigName("couchdb")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	flags.VisitAll(func(flag *pflag.Flag) {
		if flag.Name == "help" {
			return
		}
		// Only update parsed configs if the user set a value or viper lacks it
		if flag.Changed || !viper.IsSet(flag.Name) {
			viper.Set(flag.Name, flag.Value.String())
		}
	})

	if err := viper.Unmarshal(&Config); err != nil {
		panic(err)
	}

	if Config.NodeName == "" {
		host, err := os.Hostname()
		if err != nil {
			panic(fmt.Errorf("could not derive node-name from hostname: %w", err))
		}
		Config.NodeName = host
	}
}

// WatchTunables begins watching the config file and forwards changed sync
// tunables as raw strings. Validation happens in the scheduler so a bad
// value never clobbers a good one.
func WatchTunables(onChange func(key, value string)) {
	viper.OnConfigChange(func(in fsnotify.Event) {
		slog.Info("config file changed", slog.String("path", in.Name))
		for _, key := range []string{"sync-delay-ms", "sync-frequency-ms"} {
			onChange(key, viper.GetString(key))
		}
	})
	viper.WatchConfig()
}

// InitConfig initializes the config file.
// If the config file does not exist, it creates a new one.
// If the config file exists, it is only replaced when --overwrite is given.
func InitConfig(flags *pflag.FlagSet) {
	Load(flags)
	configPath := filepath.Join(MetadataDir, "couchdb.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		err := viper.WriteConfigAs(configPath)
		if err != nil {
			slog.Error("could not write the config file",
				slog.String("path", configPath),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("config created", slog.String("path", configPath))
	} else {
		if overwrite, _ := flags.GetBool("overwrite"); overwrite {
			err := viper.WriteConfigAs(configPath)
			if err != nil {
				slog.Error("could not write the config file",
					slog.String("path", configPath),
					slog.String("error", err.Error()))
				os.Exit(1)
			}
			slog.Info("config overwritten", slog.String("path", configPath))
		} else {
			slog.Info("config already exists. skipping.", slog.String("path", configPath))
			slog.Info("run with --overwrite to overwrite the existing config")
		}
	}
}

// configureMetadataDir creates the default metadata directory used for the
// config file and other persistent data.
func configureMetadataDir() {
	// If MetadataDir is not an absolute path, anchor it to current working directory.
	if !filepath.IsAbs(MetadataDir) {
		cwd, _ := os.Getwd()
		MetadataDir = filepath.Join(cwd, MetadataDir)
	}
	if err := os.MkdirAll(MetadataDir, 0o700); err != nil {
		fmt.Printf("could not create metadata directory at %s. error: %s\n", MetadataDir, err)
		fmt.Println("using current directory as metadata directory")
		MetadataDir = "."
	}
}

func initDefaultConfig() *CouchConfig {
	defaultConfig := &CouchConfig{}
	configType := reflect.TypeOf(*defaultConfig)
	configValue := reflect.ValueOf(defaultConfig).Elem()

	for i := 0; i < configType.NumField(); i++ {
		field := configType.Field(i)
		value := configValue.Field(i)

		tag := field.Tag.Get("default")
		if tag != "" {
			switch value.Kind() {
			case reflect.String:
				value.SetString(tag)
			case reflect.Int:
				intVal := 0
				_, err := fmt.Sscanf(tag, "%d", &intVal)
				if err == nil {
					value.SetInt(int64(intVal))
				}
			case reflect.Bool:
				boolVal := false
				_, err := fmt.Sscanf(tag, "%t", &boolVal)
				if err == nil {
					value.SetBool(boolVal)
				}
			}
		}
	}

	return defaultConfig
}

func ForceInit(config *CouchConfig) {
	defaultConfig := initDefaultConfig()

	configType := reflect.TypeOf(*config)
	configValue := reflect.ValueOf(config).Elem()

	defaultConfigValue := reflect.ValueOf(defaultConfig).Elem()

	for i := 0; i < configType.NumField(); i++ {
		value := configValue.Field(i)
		defaultValue := defaultConfigValue.Field(i)
		if value.IsZero() {
			value.Set(defaultValue)
		}
	}

	Config = config
}
