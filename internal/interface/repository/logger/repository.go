package logger

import (
	"io"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"offlineproxy/internal/domain"
)

const timeFormat = "2006/01/02 15:04:05.000"

// Repository はロガーのリポジトリ実装.
type Repository struct {
	logger *log.Logger
	file   *rotatingFile
}

// Verify interface implementation.
var _ domain.Logger = (*Repository)(nil)

// New はログディレクトリのファイルに書き込むRepositoryインスタンスを作成.
func New(directory, filename string, config *RotationConfig, opts Options) (
	*Repository, error,
) {
	if config == nil {
		config = DefaultRotationConfig()
	}

	file, err := openRotatingFile(directory, filename, config)
	if err != nil {
		return nil, err
	}

	var w io.Writer = file
	if opts.Stderr {
		w = io.MultiWriter(file, os.Stderr)
	}

	r, err := NewWithWriter(w, opts)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.file = file
	return r, nil
}

// NewWithWriter は任意のWriterに書き込むRepositoryインスタンスを作成.
func NewWithWriter(w io.Writer, opts Options) (*Repository, error) {
	level, err := opts.level()
	if err != nil {
		return nil, err
	}
	formatter, err := opts.formatter()
	if err != nil {
		return nil, err
	}

	return &Repository{
		logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      timeFormat,
			Level:           level,
			Formatter:       formatter,
		}),
	}, nil
}

// NewNop は何も出力しないロガーを作成.
func NewNop() *Repository {
	return &Repository{
		logger: log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel}),
	}
}

// Debug はDEBUGレベルのログを記録.
func (r *Repository) Debug(msg string, fields map[string]interface{}) {
	r.logger.Debug(msg, keyvals(fields, nil)...)
}

// Info はINFOレベルのログを記録.
func (r *Repository) Info(msg string, fields map[string]interface{}) {
	r.logger.Info(msg, keyvals(fields, nil)...)
}

// Warn はWARNレベルのログを記録.
func (r *Repository) Warn(msg string, fields map[string]interface{}) {
	r.logger.Warn(msg, keyvals(fields, nil)...)
}

// Error はERRORレベルのログを記録.
func (r *Repository) Error(
	msg string, err error, fields map[string]interface{},
) {
	r.logger.Error(msg, keyvals(fields, err)...)
}

// Close はロガーのリソースを解放.
func (r *Repository) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// keyvals はフィールドをキー順に並べたキー/値のリストに変換.
func keyvals(fields map[string]interface{}, err error) []interface{} {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]interface{}, 0, len(keys)*2+2)
	for _, k := range keys {
		v := fields[k]
		if d, ok := v.(time.Duration); ok {
			v = d.String()
		}
		kv = append(kv, k, v)
	}
	if err != nil {
		kv = append(kv, "error", err.Error())
	}
	return kv
}
