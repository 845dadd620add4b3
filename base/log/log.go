// Copyright 2022 gorse Project Authors
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

package log

import (
	"net/url"
	"os"
	"runtime"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeLayout = "2006-01-02 15:04:05.999999"

var logger *zap.Logger

func init() {
	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	// Windows file sink support: https://github.com/uber-go/zap/issues/621
	if runtime.GOOS == "windows" {
		if err := zap.RegisterSink("windows", func(u *url.URL) (zap.Sink, error) {
			return os.OpenFile(u.Path[1:], os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		}); err != nil {
			logger.Fatal("failed to register Windows file sink", zap.Error(err))
		}
	}
}

// Logger returns the process logger.
func Logger() *zap.Logger {
	return logger
}

// Sync flushes buffered log entries.
func Sync() {
	_ = logger.Sync()
}

// Options of the process logger. Log files are rotated by lumberjack.
type Options struct {
	Debug      bool
	Path       string
	MaxSize    int
	MaxAge     int
	MaxBackups int
}

func AddFlags(flagSet *pflag.FlagSet) {
	flagSet.String("log-path", "", "path of log file")
	flagSet.Int("log-max-size", 100, "maximum size in megabytes of the log file")
	flagSet.Int("log-max-age", 0, "maximum number of days to retain old log files")
	flagSet.Int("log-max-backups", 0, "maximum number of old log files to retain")
}

// SetLogger replaces the process logger according to flags registered by AddFlags.
func SetLogger(flagSet *pflag.FlagSet, debug bool) {
	opts := Options{Debug: debug}
	if flagSet.Changed("log-path") {
		opts.Path, _ = flagSet.GetString("log-path")
		opts.MaxSize, _ = flagSet.GetInt("log-max-size")
		opts.MaxAge, _ = flagSet.GetInt("log-max-age")
		opts.MaxBackups, _ = flagSet.GetInt("log-max-backups")
	}
	logger = NewLogger(opts)
}

// NewLogger writes console logs in debug mode and JSON logs otherwise.
// Entries always go to stdout, and also to opts.Path if set.
func NewLogger(opts Options) *zap.Logger {
	var (
		encoder zapcore.Encoder
		level   zapcore.Level
	)
	if opts.Debug {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
		encoder = zapcore.NewConsoleEncoder(cfg)
		level = zap.DebugLevel
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
		encoder = zapcore.NewJSONEncoder(cfg)
		level = zap.InfoLevel
	}
	writers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if opts.Path != "" {
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAge,
		}))
	}
	return zap.New(zapcore.NewCore(encoder, zap.CombineWriteSyncers(writers...), level))
}

const mysqlPrefix = "mysql://"

// RedactURL masks user names and passwords in store URLs. URLs that cannot
// be parsed are returned unchanged.
func RedactURL(rawURL string) string {
	mask := func(s string) string { return strings.Repeat("x", len(s)) }
	if strings.HasPrefix(rawURL, mysqlPrefix) {
		cfg, err := mysql.ParseDSN(strings.TrimPrefix(rawURL, mysqlPrefix))
		if err != nil {
			return rawURL
		}
		cfg.User, cfg.Passwd = mask(cfg.User), mask(cfg.Passwd)
		return mysqlPrefix + cfg.FormatDSN()
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.User == nil {
		return rawURL
	}
	if password, ok := parsed.User.Password(); ok {
		parsed.User = url.UserPassword(mask(parsed.User.Username()), mask(password))
	} else {
		parsed.User = url.User(mask(parsed.User.Username()))
	}
	return parsed.String()
}

// GetErrorHandler reports OpenTelemetry failures through the process logger.
func GetErrorHandler() otel.ErrorHandler {
	return otel.ErrorHandlerFunc(func(err error) {
		Logger().Error("opentelemetry failure", zap.Error(err))
	})
}
