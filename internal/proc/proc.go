// Package proc launches external commands, streams their output into a
// log sink, and reports exit status and wall-clock elapsed time.
//
// There is deliberately no timeout: a hung child hangs the invocation.
// The context is plumbed through only so that an interrupt terminates
// running children.
package proc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// stderrTailLimit bounds the stderr bytes retained for diagnostics.
const stderrTailLimit = 16 << 10

// Status reports one finished child process. A non-zero exit code is
// data, not an error; callers decide how to react.
type Status struct {
	RunID    string
	ExitCode int
	Elapsed  time.Duration
	Stderr   string // bounded head of the stderr stream
}

// Monitor runs commands with their output forwarded line-by-line to Log.
type Monitor struct {
	Log logrus.FieldLogger
}

// Run launches argv as a child process and blocks until it exits. Both
// output streams are drained concurrently: stdout lines are logged at
// debug, stderr lines at error, each as it arrives. Elapsed time spans
// from just before launch to just after termination is observed.
//
// An error is returned only when the process could not be run at all
// (empty argv, binary not found). Non-zero exits return a Status.
func (m *Monitor) Run(ctx context.Context, argv []string) (*Status, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	runID := uuid.New().String()
	log := m.Log.WithField("run", runID)
	log.Infof("exec: %v", argv)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("piping stdout of %s: %w", argv[0], err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("piping stderr of %s: %w", argv[0], err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("executing %s: %w", argv[0], err)
	}

	var tail bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		drainLines(stdout, log, func(line string) {
			log.Debug(line)
		})
	}()
	go func() {
		defer wg.Done()
		drainLines(stderr, log, func(line string) {
			log.Error(line)
			if tail.Len() < stderrTailLimit {
				tail.WriteString(line)
				tail.WriteByte('\n')
			}
		})
	}()

	// Both streams must reach EOF before Wait closes the pipes.
	wg.Wait()
	runErr := cmd.Wait()
	elapsed := time.Since(start)

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("waiting for %s: %w", argv[0], runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Status{
		RunID:    runID,
		ExitCode: exitCode,
		Elapsed:  elapsed,
		Stderr:   tail.String(),
	}, nil
}

// drainLines forwards r line-by-line to emit until EOF. A line beyond
// the scanner cap stops line splitting, but the stream must still be
// consumed to EOF or the child blocks on a full pipe forever; the
// remainder is discarded with a warning.
func drainLines(r io.Reader, log logrus.FieldLogger, emit func(line string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		emit(sc.Text())
	}
	if err := sc.Err(); err != nil {
		log.Warnf("output not line-splittable (%v); discarding remainder", err)
		_, _ = io.Copy(io.Discard, r)
	}
}
