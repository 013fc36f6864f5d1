// Package output 命令行输出格式化
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Format 输出格式
type Format string

const (
	// FormatJSON 单行 JSON（默认），便于流式输出逐行解析
	FormatJSON Format = "json"
	// FormatPretty 缩进 JSON
	FormatPretty Format = "pretty"
	// FormatText 纯文本，实现了 fmt.Stringer 的值使用 String()
	FormatText Format = "text"
)

// ParseFormat 解析输出格式
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatPretty, FormatText:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Formatter 输出格式化器
//
// 数据写入 writer，提示信息写入 logWriter（默认 stderr），避免污染 JSON。
type Formatter struct {
	format    Format
	writer    io.Writer
	logWriter io.Writer
	silent    bool
}

// NewFormatter 创建格式化器
func NewFormatter(format Format, writer io.Writer) *Formatter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Formatter{
		format:    format,
		writer:    writer,
		logWriter: os.Stderr,
	}
}

// SetLogWriter 设置提示信息的输出目标
func (f *Formatter) SetLogWriter(writer io.Writer) {
	if writer == nil {
		writer = os.Stderr
	}
	f.logWriter = writer
}

// SetSilent 静默模式只输出数据
func (f *Formatter) SetSilent(silent bool) {
	f.silent = silent
}

// Print 按格式输出一条数据
func (f *Formatter) Print(data interface{}) error {
	switch f.format {
	case FormatPretty:
		return f.printJSON(data, true)
	case FormatText:
		return f.printText(data)
	default:
		return f.printJSON(data, false)
	}
}

func (f *Formatter) printJSON(data interface{}, pretty bool) error {
	var (
		out []byte
		err error
	)
	if raw, ok := data.(json.RawMessage); ok && !pretty {
		out = raw
	} else if pretty {
		out, err = json.MarshalIndent(data, "", "  ")
	} else {
		out, err = json.Marshal(data)
	}
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if _, err := fmt.Fprintln(f.writer, string(out)); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (f *Formatter) printText(data interface{}) error {
	var err error
	switch v := data.(type) {
	case fmt.Stringer:
		_, err = fmt.Fprintln(f.writer, v.String())
	case json.RawMessage:
		_, err = fmt.Fprintln(f.writer, string(v))
	default:
		_, err = fmt.Fprintf(f.writer, "%v\n", v)
	}
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// PrintInfo 输出提示信息
func (f *Formatter) PrintInfo(message string) {
	if f.silent {
		return
	}
	_, _ = fmt.Fprintf(f.logWriter, "ℹ️  %s\n", message)
}

// PrintSuccess 输出成功信息
func (f *Formatter) PrintSuccess(message string) {
	if f.silent {
		return
	}
	_, _ = fmt.Fprintf(f.logWriter, "✅ %s\n", message)
}

// PrintError 输出错误，静默模式下同样输出
func (f *Formatter) PrintError(err error) {
	_, _ = fmt.Fprintf(f.logWriter, "❌ Error: %v\n", err)
}
