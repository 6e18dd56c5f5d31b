package logging

import (
	"bufio"
	"io"

	"github.com/rs/zerolog"
)

// LineWriter turns process output into one zerolog event per line.
type LineWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func NewLineWriter(l zerolog.Logger, level zerolog.Level, fields map[string]string) *LineWriter {
	ctx := l.With()
	for k, v := range fields {
		ctx = ctx.Str(k, v)
	}
	return &LineWriter{logger: ctx.Logger(), level: level}
}

// Pipe reads r until EOF. Lines longer than the scanner buffer are split.
func (lw *LineWriter) Pipe(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lw.logger.WithLevel(lw.level).Msg(line)
		}
	}
}
