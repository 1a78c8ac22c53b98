package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// RotationConfig はログローテーションの設定を表す.
type RotationConfig struct {
	MaxSize    int64         // バイト単位の最大サイズ
	MaxAge     time.Duration // ログファイルの最大保持期間
	MaxBackups int           // 保持する古いログファイルの最大数
}

// DefaultRotationConfig はデフォルトのログローテーション設定を返す.
func DefaultRotationConfig() *RotationConfig {
	return &RotationConfig{
		MaxSize:    100 * 1024 * 1024,  // 100MB
		MaxAge:     7 * 24 * time.Hour, // 7日
		MaxBackups: 5,
	}
}

// rotatingFile はサイズでローテーションするログファイル.
type rotatingFile struct {
	mu     sync.Mutex
	file   *os.File
	size   int64
	path   string
	dir    string
	config *RotationConfig
	done   chan struct{}
}

func openRotatingFile(dir, filename string, config *RotationConfig) (*rotatingFile, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	rf := &rotatingFile{
		path:   filepath.Join(dir, filename),
		dir:    dir,
		config: config,
		done:   make(chan struct{}),
	}
	if err := rf.open(); err != nil {
		return nil, err
	}

	// ログクリーンアップを定期的に実行
	go rf.periodicCleanup()

	return rf, nil
}

func (rf *rotatingFile) open() error {
	file, err := os.OpenFile(rf.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	rf.file = file
	rf.size = info.Size()
	return nil
}

// Write はログを書き込み, 必要ならローテーションする.
func (rf *rotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.size > 0 && rf.size+int64(len(p)) > rf.config.MaxSize {
		if err := rf.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate log: %v\n", err)
		}
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// rotate はログファイルをローテーション.
func (rf *rotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		return err
	}

	timestamp := time.Now().Format("20060102150405.000")
	if err := os.Rename(rf.path, fmt.Sprintf("%s.%s", rf.path, timestamp)); err != nil {
		return err
	}

	return rf.open()
}

// periodicCleanup は定期的に古いログファイルを削除.
func (rf *rotatingFile) periodicCleanup() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cleanOldLogs(rf.path, rf.config)
		case <-rf.done:
			return
		}
	}
}

// Close はファイルを閉じる.
func (rf *rotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	close(rf.done)
	return rf.file.Close()
}

// cleanOldLogs は期限切れ, または保持数を超えた古いログファイルを削除.
func cleanOldLogs(basePath string, config *RotationConfig) error {
	files, err := filepath.Glob(basePath + ".*")
	if err != nil {
		return err
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}

	var logFiles []fileInfo
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		logFiles = append(logFiles, fileInfo{f, info.ModTime()})
	}

	// 新しい順
	sort.Slice(logFiles, func(i, j int) bool {
		return logFiles[i].modTime.After(logFiles[j].modTime)
	})

	now := time.Now()
	for i, f := range logFiles {
		expired := config.MaxAge > 0 && now.Sub(f.modTime) > config.MaxAge
		overflow := config.MaxBackups > 0 && i >= config.MaxBackups
		if expired || overflow {
			os.Remove(f.path)
		}
	}

	return nil
}
