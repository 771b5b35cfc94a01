package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/report"
)

// Format 输出格式，实现 pflag.Value
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatJSONV2   Format = "jsonv2"
)

var formats = []Format{FormatText, FormatMarkdown, FormatJSON, FormatJSONV2}

func (f *Format) String() string {
	return string(*f)
}

func (f *Format) Set(s string) error {
	for _, format := range formats {
		if Format(s) == format {
			*f = format
			return nil
		}
	}
	return errors.Errorf("invalid choice %q (choose from text, markdown, json, jsonv2)", s)
}

func (f *Format) Type() string {
	return "string"
}

// Formatter 按固定的格式输出结果与错误
// 结果写到out，text/markdown格式的错误经独立的logger写到errOut
type Formatter struct {
	format Format
	out    io.Writer
	logger *log.Logger
}

func NewFormatter(format Format, out, errOut io.Writer) *Formatter {
	logger := log.New()
	logger.Out = errOut
	logger.Level = log.ErrorLevel
	logger.Formatter = &log.TextFormatter{DisableTimestamp: true}
	return &Formatter{format: format, out: out, logger: logger}
}

func (f *Formatter) Format() Format {
	return f.format
}

func (f *Formatter) Print(msg string) {
	fmt.Fprintln(f.out, msg)
}

type errorReport struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Issues  []string `json:"issues"`
}

// Fail 输出错误，每次调用只产生一条消息
// json格式不包含调用栈
func (f *Formatter) Fail(env Envelope) {
	switch f.format {
	case FormatJSON:
		f.printJSON(errorReport{Error: env.Message, Issues: []string{}})
	case FormatJSONV2:
		f.printJSON([]report.SWCReport{{
			Issues:     []report.SWCIssue{},
			SourceList: []string{},
			Meta: report.Meta{Logs: []report.LogEntry{
				{Level: "error", Hidden: true, Msg: env.Message},
			}},
		}})
	default:
		msg := env.Message
		if env.Trace != "" {
			msg = env.Trace
		}
		f.logger.Error(msg)
	}
}

func (f *Formatter) printJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		f.logger.Errorf("json.Marshal: %v", err)
		return
	}
	f.Print(string(data))
}

// Version json格式输出 {"version_str": ...}
func (f *Formatter) Version(version string) {
	if f.format == FormatJSON {
		f.printJSON(map[string]string{"version_str": version})
		return
	}
	f.Print("gscanner version " + version)
}

// Report 输出分析结果
func (f *Formatter) Report(r *report.Report) error {
	var (
		out string
		err error
	)
	switch f.format {
	case FormatJSON:
		out, err = r.AsJSON()
	case FormatJSONV2:
		out, err = r.AsSWCStandardFormat()
	case FormatMarkdown:
		out = r.AsMarkdown()
	default:
		out = r.AsText()
	}
	if err != nil {
		return err
	}
	f.Print(out)
	return nil
}
