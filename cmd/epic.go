package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

var rainbowColors = []*color.Color{
	color.New(color.FgRed),
	color.New(color.FgYellow),
	color.New(color.FgGreen),
	color.New(color.FgCyan),
	color.New(color.FgBlue),
	color.New(color.FgMagenta),
}

// withoutEpic 去掉全部 --epic
func withoutEpic(argv []string) []string {
	result := make([]string, 0, len(argv))
	for _, arg := range argv {
		if arg == "--epic" || arg == "--epic=true" {
			continue
		}
		result = append(result, arg)
	}
	return result
}

// runEpic 去掉 --epic 后重新执行自身，子进程的标准输出逐字着色后写到w
func runEpic(ctx context.Context, argv []string, w io.Writer) error {
	exe, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "os.Executable")
	}
	cmd := exec.CommandContext(ctx, exe, withoutEpic(argv)...)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "StdoutPipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start %s", exe)
	}
	if err := rainbow(stdout, w); err != nil {
		_ = cmd.Wait()
		return err
	}
	return errors.Wrap(cmd.Wait(), "epic")
}

func rainbow(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 0; scanner.Scan(); line++ {
		var i int
		for _, ch := range scanner.Text() {
			c := rainbowColors[(line+i)%len(rainbowColors)]
			if _, err := c.Fprint(w, string(ch)); err != nil {
				return errors.Wrap(err, "write")
			}
			i++
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return errors.Wrap(err, "write")
		}
	}
	return errors.Wrap(scanner.Err(), "read")
}
