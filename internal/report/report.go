package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/Notation/gscanner/internal/solidity"
)

const noIssues = "The analysis was completed successfully. No issues were detected."

var (
	titleColor = color.New(color.FgRed, color.Bold)
	fileColor  = color.New(color.FgYellow)
)

// Source 被分析对象的描述，用于SWC标准格式
type Source struct {
	Type   string
	Format string
	List   []string
}

// NewSource 根据合约来源生成描述：源码文件、链上地址或字节码
func NewSource(contracts []*solidity.EVMContract) *Source {
	source := &Source{}
	seen := make(map[string]bool)
	for _, contract := range contracts {
		var key string
		switch {
		case contract.InputFile != "":
			source.Type, source.Format = "solidity-file", "text"
			key = contract.InputFile
		default:
			source.Format = "evm-byzantium-bytecode"
			source.Type = "raw-bytecode"
			if strings.HasPrefix(contract.Name, "0x") {
				source.Type = "ethereum-address"
			}
			key, _ = contract.BytecodeHash()
		}
		if !seen[key] {
			seen[key] = true
			source.List = append(source.List, key)
		}
	}
	if source.List == nil {
		source.List = []string{}
	}
	return source
}

func (s *Source) index(is *Issue) int {
	for i, key := range s.List {
		if key == is.BytecodeHash || (is.File != "" && key == is.File) {
			return i
		}
	}
	return 0
}

// Report 一次分析的全部结果，相同位置的同类问题只保留一个
type Report struct {
	Source     *Source
	Exceptions []string

	issues map[string]*Issue
}

func NewReport(contracts []*solidity.EVMContract) *Report {
	return &Report{
		Source: NewSource(contracts),
		issues: make(map[string]*Issue),
	}
}

func (r *Report) Append(issues ...*Issue) {
	for _, is := range issues {
		r.issues[is.key()] = is
	}
}

// Issues 按地址、标题排序
func (r *Report) Issues() []*Issue {
	result := make([]*Issue, 0, len(r.issues))
	for _, is := range r.issues {
		result = append(result, is)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Address != result[j].Address {
			return result[i].Address < result[j].Address
		}
		if result[i].Title != result[j].Title {
			return result[i].Title < result[j].Title
		}
		return result[i].Contract < result[j].Contract
	})
	return result
}

func (r *Report) AsText() string {
	issues := r.Issues()
	if len(issues) == 0 {
		return noIssues + "\n"
	}
	var b strings.Builder
	for _, is := range issues {
		b.WriteString(is.String())
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Report) AsMarkdown() string {
	issues := r.Issues()
	var b strings.Builder
	b.WriteString("# Analysis results")
	if len(issues) > 0 && issues[0].File != "" {
		b.WriteString(" for " + issues[0].File)
	}
	b.WriteString("\n\n")
	if len(issues) == 0 {
		b.WriteString(noIssues + "\n")
		return b.String()
	}

	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"SWC ID", "Severity", "Title", "Contract", "Function", "PC"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	for _, is := range issues {
		table.Append([]string{is.SWCID, is.Severity, is.Title, orDefault(is.Contract, "Unknown"),
			"`" + is.Function + "`", fmt.Sprint(is.Address)})
	}
	table.Render()

	for _, is := range issues {
		fmt.Fprintf(&b, "\n## %s\n", is.Title)
		fmt.Fprintf(&b, "- SWC ID: %s\n", is.SWCID)
		fmt.Fprintf(&b, "- Severity: %s\n", is.Severity)
		fmt.Fprintf(&b, "- Contract: %s\n", orDefault(is.Contract, "Unknown"))
		fmt.Fprintf(&b, "- Function name: `%s`\n", is.Function)
		fmt.Fprintf(&b, "- PC address: %d\n", is.Address)
		fmt.Fprintf(&b, "\n### Description\n\n%s\n", strings.TrimRight(is.Description(), "\n"))
		switch {
		case is.File != "" && is.Line > 0:
			fmt.Fprintf(&b, "In file: %s:%d\n", is.File, is.Line)
		case is.File != "":
			fmt.Fprintf(&b, "In file: %s\n", is.File)
		}
		if is.Code != "" {
			fmt.Fprintf(&b, "\n### Code\n\n```\n%s\n```\n", is.Code)
		}
	}
	return b.String()
}

type jsonIssue struct {
	Title       string `json:"title"`
	SWCID       string `json:"swc-id"`
	Contract    string `json:"contract"`
	Description string `json:"description"`
	Function    string `json:"function"`
	Severity    string `json:"severity"`
	Address     int    `json:"address"`
	Filename    string `json:"filename,omitempty"`
	Lineno      int    `json:"lineno,omitempty"`
	Code        string `json:"code,omitempty"`
}

type jsonReport struct {
	Success bool        `json:"success"`
	Error   *string     `json:"error"`
	Issues  []jsonIssue `json:"issues"`
}

func (r *Report) AsJSON() (string, error) {
	result := jsonReport{Success: true, Issues: []jsonIssue{}}
	for _, is := range r.Issues() {
		result.Issues = append(result.Issues, jsonIssue{
			Title:       is.Title,
			SWCID:       is.SWCID,
			Contract:    orDefault(is.Contract, "Unknown"),
			Description: is.Description(),
			Function:    is.Function,
			Severity:    is.Severity,
			Address:     is.Address,
			Filename:    is.File,
			Lineno:      is.Line,
			Code:        is.Code,
		})
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", errors.Wrap(err, "json.Marshal")
	}
	return string(data), nil
}

// SWCIssue SWC标准格式中的问题
type SWCIssue struct {
	SWCID       string            `json:"swcID"`
	SWCTitle    string            `json:"swcTitle"`
	Description SWCDescription    `json:"description"`
	Severity    string            `json:"severity"`
	Locations   []SWCLocation     `json:"locations"`
	Extra       map[string]string `json:"extra"`
}

type SWCDescription struct {
	Head string `json:"head"`
	Tail string `json:"tail"`
}

type SWCLocation struct {
	SourceMap string `json:"sourceMap"`
}

type LogEntry struct {
	Level  string `json:"level"`
	Hidden bool   `json:"hidden"`
	Msg    string `json:"msg"`
}

type Meta struct {
	Logs []LogEntry `json:"logs,omitempty"`
}

// SWCReport SWC标准格式的一项，输出为只有一项的数组
type SWCReport struct {
	Issues       []SWCIssue `json:"issues"`
	SourceType   string     `json:"sourceType"`
	SourceFormat string     `json:"sourceFormat"`
	SourceList   []string   `json:"sourceList"`
	Meta         Meta       `json:"meta"`
}

func (r *Report) AsSWCStandardFormat() (string, error) {
	result := SWCReport{
		Issues:       []SWCIssue{},
		SourceType:   r.Source.Type,
		SourceFormat: r.Source.Format,
		SourceList:   r.Source.List,
	}
	for _, is := range r.Issues() {
		result.Issues = append(result.Issues, SWCIssue{
			SWCID:       "SWC-" + is.SWCID,
			SWCTitle:    is.Title,
			Description: SWCDescription{Head: is.DescriptionHead, Tail: is.DescriptionTail},
			Severity:    is.Severity,
			Locations:   []SWCLocation{{SourceMap: fmt.Sprintf("%d:1:%d", is.Address, r.Source.index(is))}},
			Extra:       map[string]string{},
		})
	}
	for _, exception := range r.Exceptions {
		result.Meta.Logs = append(result.Meta.Logs, LogEntry{Level: "error", Hidden: true, Msg: exception})
	}
	data, err := json.Marshal([]SWCReport{result})
	if err != nil {
		return "", errors.Wrap(err, "json.Marshal")
	}
	return string(data), nil
}
