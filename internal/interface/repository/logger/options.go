package logger

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
)

// Options はロガーの設定を表す. 環境変数から読み込む.
type Options struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
	// Stderr が true の場合, ファイルに加えて標準エラー出力にも書き込む
	Stderr bool `env:"LOG_STDERR" envDefault:"true"`
}

// OptionsFromEnv は環境変数から設定を読み込む.
func OptionsFromEnv() (Options, error) {
	opts, err := env.ParseAs[Options]()
	if err != nil {
		return Options{}, fmt.Errorf("failed to parse logger options: %w", err)
	}
	return opts, nil
}

// level はログレベルを解析する.
func (o Options) level() (log.Level, error) {
	if o.Level == "" {
		return log.InfoLevel, nil
	}
	return log.ParseLevel(strings.ToLower(o.Level))
}

// formatter は出力フォーマットを解析する.
func (o Options) formatter() (log.Formatter, error) {
	switch strings.ToLower(o.Format) {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	}
	return log.TextFormatter, fmt.Errorf("unknown log format %q", o.Format)
}
