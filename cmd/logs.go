package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aholstad/berth/internal/docker"
)

var (
	logsFollow     bool
	logsTail       string
	logsTimestamps bool
)

var logsCmd = &cobra.Command{
	Use:   "logs [service...]",
	Short: "Stream service logs",
	Long: `Logs prints the output of the named services, or of every service when
none are named. Lines are prefixed with the service name when more than one
service is shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := args
		if len(names) == 0 {
			names = cfg.ServiceNames()
		}
		for _, name := range names {
			if _, ok := cfg.Services[name]; !ok {
				return fmt.Errorf("unknown service %q", name)
			}
		}

		mgr, err := docker.NewManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		width := 0
		for _, name := range names {
			if len(name) > width {
				width = len(name)
			}
		}

		var wg sync.WaitGroup
		for _, name := range names {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w := io.Writer(os.Stdout)
				if len(names) > 1 {
					pw := newPrefixWriter(os.Stdout, fmt.Sprintf("%-*s | ", width, name))
					defer pw.flush()
					w = pw
				}
				opts := docker.LogsOptions{Follow: logsFollow, Tail: logsTail, Timestamps: logsTimestamps}
				if err := mgr.Logs(ctx, docker.ContainerName(cfg.Name, name), opts, w, w); err != nil {
					fmt.Fprintf(os.Stderr, "logs %s: %v\n", name, err)
				}
			}()
		}
		wg.Wait()
		return nil
	},
}

// prefixWriter prepends a fixed prefix to every line it writes. Writes are
// buffered until a newline so a line is emitted in one piece even when the
// source splits it across writes.
type prefixWriter struct {
	mu     sync.Mutex
	out    io.Writer
	prefix []byte
	buf    []byte
}

func newPrefixWriter(out io.Writer, prefix string) *prefixWriter {
	return &prefixWriter{out: out, prefix: []byte(prefix)}
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, b...)
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := append(append([]byte{}, p.prefix...), p.buf[:i+1]...)
		if _, err := p.out.Write(line); err != nil {
			return len(b), err
		}
		p.buf = p.buf[i+1:]
	}
	return len(b), nil
}

// flush writes out a trailing line that never got its newline.
func (p *prefixWriter) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buf) == 0 {
		return
	}
	line := append(append([]byte{}, p.prefix...), p.buf...)
	line = append(line, '\n')
	p.out.Write(line)
	p.buf = nil
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep streaming new log lines")
	logsCmd.Flags().StringVar(&logsTail, "tail", "all", "number of lines to show from the end of the logs")
	logsCmd.Flags().BoolVarP(&logsTimestamps, "timestamps", "t", false, "show timestamps")
	rootCmd.AddCommand(logsCmd)
}
