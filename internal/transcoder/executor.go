package transcoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"uniquify-worker/internal/logging"
	"uniquify-worker/internal/pipeline"
)

const stderrTail = 4 << 10

// Executor runs one ffmpeg process per command.
type Executor struct {
	ffmpegPath string
	waitDelay  time.Duration
	logger     zerolog.Logger
}

func NewExecutor(ffmpegPath string, logger zerolog.Logger) *Executor {
	return &Executor{
		ffmpegPath: orDefault(ffmpegPath, "ffmpeg"),
		waitDelay:  5 * time.Second,
		logger:     logger,
	}
}

// Execute runs cmd and blocks until ffmpeg exits. A positive timeout bounds
// the run; on timeout or ctx cancellation the process is killed.
func (x *Executor) Execute(ctx context.Context, cmd pipeline.Command, timeout time.Duration) error {
	// 1. Bound the run by the variant timeout
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	// 2. Kill ffmpeg outright on cancel or timeout
	c := exec.CommandContext(runCtx, x.ffmpegPath, cmd.Args()...)
	c.Cancel = func() error { return c.Process.Kill() }
	c.WaitDelay = x.waitDelay

	// 3. Keep the stderr tail for errors and stream every line to the log
	tail := &tailBuffer{max: stderrTail}
	pr, pw := io.Pipe()
	c.Stderr = io.MultiWriter(tail, pw)

	lw := logging.NewLineWriter(x.logger, zerolog.DebugLevel, map[string]string{"output": cmd.Output})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lw.Pipe(pr)
		_, _ = io.Copy(io.Discard, pr)
	}()

	// 4. Run and wait for the log pipe to drain
	start := time.Now()
	err := c.Start()
	if err == nil {
		x.logger.Debug().Int("pid", c.Process.Pid).Str("output", cmd.Output).Msg("ffmpeg started")
		err = c.Wait()
	}
	_ = pw.Close()
	wg.Wait()

	if err == nil {
		x.logger.Debug().Str("output", cmd.Output).Dur("elapsed", time.Since(start)).Msg("ffmpeg finished")
		return nil
	}
	// 5. Map the failure: caller cancel, timeout, then ffmpeg's own exit
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Timeout: timeout}
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &TranscodeFailure{ExitCode: code, Stderr: tail.String(), Err: err}
}

// tailBuffer keeps the last max bytes written to it. Only the exec copy
// goroutine writes, and reads happen after Wait.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
