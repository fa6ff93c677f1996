package capture

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"madrasa-audio/audio"
)

// SoxDevice records from the default microphone via the sox `rec` tool,
// which is what the native test clients use in place of a browser capture
// tap. The subprocess emits raw PCM16LE mono at the requested rate.
type SoxDevice struct{}

func (SoxDevice) Open(ctx context.Context, sampleRate, bufferSize int) (Stream, error) {
	bin, err := exec.LookPath("rec")
	if err != nil {
		return nil, fmt.Errorf("%w: sox 'rec' not found in PATH", ErrDeviceUnavailable)
	}

	cmd := exec.CommandContext(ctx, bin,
		"-q",
		"-t", "raw",
		"-r", strconv.Itoa(sampleRate),
		"-b", "16",
		"-c", "1",
		"-e", "signed-integer",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	return &soxStream{
		cmd:        cmd,
		stdout:     stdout,
		stderr:     &stderr,
		bufferSize: bufferSize,
	}, nil
}

type soxStream struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	stderr     *strings.Builder
	bufferSize int
	closeOnce  sync.Once
}

func (s *soxStream) Read() ([]float32, error) {
	buf := make([]byte, s.bufferSize*2)
	if _, err := io.ReadFull(s.stdout, buf); err != nil {
		if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
			if strings.Contains(msg, "Permission denied") || strings.Contains(msg, "busy") {
				return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
			}
			return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, msg)
		}
		return nil, err
	}
	return audio.PCM16ToFloat(buf), nil
}

func (s *soxStream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.stdout.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			_, _ = s.cmd.Process.Wait()
		}
	})
	return nil
}
