// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/affinity/model"
	"github.com/gorse-io/affinity/model/mf"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "AFFINITY"

// Config is the configuration for affinity.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Blob       BlobConfig       `mapstructure:"blob"`
	Training   TrainingConfig   `mapstructure:"training"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Recommend  RecommendConfig  `mapstructure:"recommend"`
}

// DatabaseConfig is the configuration for the record store, the model registry and the cache.
type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store" validate:"required,data_store"`
	MetaStore   string `mapstructure:"meta_store" validate:"required,startswith=sqlite://"`
	CacheStore  string `mapstructure:"cache_store" validate:"required,cache_store"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// BlobConfig selects where serialized models are kept.
type BlobConfig struct {
	Type  string          `mapstructure:"type" validate:"oneof=posix s3 gcs azure"`
	POSIX POSIXConfig     `mapstructure:"posix"`
	S3    S3Config        `mapstructure:"s3"`
	GCS   GCSConfig       `mapstructure:"gcs"`
	Azure AzureBlobConfig `mapstructure:"azure"`
}

type POSIXConfig struct {
	Dir string `mapstructure:"dir"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureBlobConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	Endpoint         string `mapstructure:"endpoint"`
	Container        string `mapstructure:"container"`
	Prefix           string `mapstructure:"prefix"`
}

// TrainingConfig holds the split fraction, the trainer and its hyper-parameters.
type TrainingConfig struct {
	Model         string  `mapstructure:"model" validate:"oneof=svd als"`
	TrainFraction float64 `mapstructure:"train_fraction" validate:"gt=0,lt=1"`
	NFactors      int     `mapstructure:"n_factors" validate:"gt=0"`
	NEpochs       int     `mapstructure:"n_epochs" validate:"gt=0"`
	Lr            float32 `mapstructure:"lr" validate:"gt=0"`
	Reg           float32 `mapstructure:"reg" validate:"gte=0"`
	InitMean      float32 `mapstructure:"init_mean"`
	InitStdDev    float32 `mapstructure:"init_std" validate:"gte=0"`
	UseBias       bool    `mapstructure:"use_bias"`
	RandomState   int64   `mapstructure:"random_state"`
	Jobs          int     `mapstructure:"jobs" validate:"gt=0"`
	Verbose       int     `mapstructure:"verbose" validate:"gte=0"`
}

type EvaluationConfig struct {
	Label string `mapstructure:"label" validate:"oneof=item_id rating"`
	Jobs  int    `mapstructure:"jobs" validate:"gt=0"`
}

type RecommendConfig struct {
	TopK      int           `mapstructure:"top_k" validate:"gt=0"`
	Threshold float32       `mapstructure:"threshold"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	Jobs      int           `mapstructure:"jobs" validate:"gt=0"`
}

// TrainingParams converts [training] into hyper-parameters.
func (c *Config) TrainingParams() model.Params {
	return model.Params{
		model.NFactors:    c.Training.NFactors,
		model.NEpochs:     c.Training.NEpochs,
		model.Lr:          c.Training.Lr,
		model.Reg:         c.Training.Reg,
		model.InitMean:    c.Training.InitMean,
		model.InitStdDev:  c.Training.InitStdDev,
		model.UseBias:     c.Training.UseBias,
		model.RandomState: c.Training.RandomState,
	}
}

func (c *Config) FitConfig() *mf.FitConfig {
	return mf.NewFitConfig().
		SetJobs(c.Training.Jobs).
		SetVerbose(c.Training.Verbose)
}

func (c *Config) EvaluationLabel() (mf.Label, error) {
	return mf.ParseLabel(c.Evaluation.Label)
}

func setDefaults(v *viper.Viper) {
	// [database]
	v.SetDefault("database.data_store", "sqlite://data.db")
	v.SetDefault("database.meta_store", "sqlite://meta.db")
	v.SetDefault("database.cache_store", "memory://")
	v.SetDefault("database.table_prefix", "")
	// [blob]
	v.SetDefault("blob.type", "posix")
	v.SetDefault("blob.posix.dir", "blob")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.prefix", "")
	v.SetDefault("blob.s3.use_ssl", false)
	v.SetDefault("blob.gcs.bucket", "")
	v.SetDefault("blob.gcs.prefix", "")
	v.SetDefault("blob.gcs.credentials_file", "")
	v.SetDefault("blob.azure.connection_string", "")
	v.SetDefault("blob.azure.account_name", "")
	v.SetDefault("blob.azure.account_key", "")
	v.SetDefault("blob.azure.endpoint", "")
	v.SetDefault("blob.azure.container", "")
	v.SetDefault("blob.azure.prefix", "")
	// [training]
	v.SetDefault("training.model", "svd")
	v.SetDefault("training.train_fraction", 0.7)
	v.SetDefault("training.n_factors", 100)
	v.SetDefault("training.n_epochs", 20)
	v.SetDefault("training.lr", 0.005)
	v.SetDefault("training.reg", 0.02)
	v.SetDefault("training.init_mean", 0)
	v.SetDefault("training.init_std", 0.1)
	v.SetDefault("training.use_bias", true)
	v.SetDefault("training.random_state", 0)
	v.SetDefault("training.jobs", 1)
	v.SetDefault("training.verbose", 10)
	// [evaluation]
	v.SetDefault("evaluation.label", "item_id")
	v.SetDefault("evaluation.jobs", 1)
	// [recommend]
	v.SetDefault("recommend.top_k", 20)
	v.SetDefault("recommend.threshold", 3.5)
	v.SetDefault("recommend.cache_ttl", time.Hour)
	v.SetDefault("recommend.jobs", 1)
}

// GetDefaultConfig returns the configuration used when no file is given.
func GetDefaultConfig() *Config {
	cfg, err := LoadConfig("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfig reads a TOML file (optional), applies AFFINITY_* environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config %s", path)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &cfg, nil
}
