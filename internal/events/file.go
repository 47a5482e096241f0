package events

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FilePublisher 以JSON Lines格式追加写入事件
type FilePublisher struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *bufio.Writer
}

// NewFilePublisher 打开事件文件，目录不存在时创建
func NewFilePublisher(path string) (*FilePublisher, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开事件文件失败: %w", err)
	}

	return &FilePublisher{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Publish 写入一行事件并刷新缓冲
func (f *FilePublisher) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return fmt.Errorf("事件文件已关闭")
	}
	if _, err := f.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("写入事件失败: %w", err)
	}
	return f.writer.Flush()
}

// Path 返回事件文件路径
func (f *FilePublisher) Path() string {
	return f.path
}

// Close 刷新并关闭文件
func (f *FilePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	flushErr := f.writer.Flush()
	closeErr := f.file.Close()
	f.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
