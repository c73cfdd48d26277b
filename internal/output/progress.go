package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// writerIsTTY reports whether w is a file attached to a terminal. Buffers and
// other plain writers are never terminals.
func writerIsTTY(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && isatty.IsTerminal(f.Fd())
}

// ProgressBar draws a fixed-width bar for work with a known number of steps.
//
//	[==========>         ] 50% Probing packages
type ProgressBar struct {
	mu          sync.Mutex
	w           io.Writer
	total       int
	current     int
	width       int
	description string
}

// NewProgress returns a bar for total steps writing to stderr.
func NewProgress(total int, description string) *ProgressBar {
	return &ProgressBar{
		w:           os.Stderr,
		total:       total,
		width:       30,
		description: description,
	}
}

// SetWriter redirects the bar.
func (p *ProgressBar) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.w = w
}

// Describe replaces the text shown after the percentage.
func (p *ProgressBar) Describe(description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.description = description
}

// Increment advances the bar by one step.
func (p *ProgressBar) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current < p.total {
		p.current++
	}
	p.render()
}

// Finish fills the bar and ends its line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	done := p.current == p.total
	p.current = p.total
	if writerIsTTY(p.w) {
		p.render()
		fmt.Fprintln(p.w)
		return
	}
	// Off a terminal the last Increment already printed the only line.
	if !done {
		p.render()
	}
}

// render must be called with p.mu held.
func (p *ProgressBar) render() {
	pct, filled := 100, p.width
	if p.total > 0 {
		pct = p.current * 100 / p.total
		filled = p.current * p.width / p.total
	}

	bar := strings.Repeat("=", max(filled-1, 0))
	if filled > 0 {
		bar += ">"
	}
	line := fmt.Sprintf("[%-*s] %3d%% %s", p.width, bar, pct, p.description)

	if writerIsTTY(p.w) {
		fmt.Fprint(p.w, "\r"+line)
	} else if p.current == p.total {
		fmt.Fprintln(p.w, line)
	}
}

// Spinner shows that an operation of unknown length is still running. Off a
// terminal it prints its message once and never animates.
type Spinner struct {
	mu      sync.Mutex
	w       io.Writer
	message string
	timeout time.Duration
	started time.Time
	running bool
	stop    chan struct{}
}

var spinnerFrames = []string{"|", "/", "-", "\\"}

// NewSpinner returns a stopped spinner writing to stderr.
func NewSpinner(message string) *Spinner {
	return &Spinner{w: os.Stderr, message: message}
}

// WithTimeout shows the time left before timeout next to the message. Call
// it before Start.
func (s *Spinner) WithTimeout(timeout time.Duration) *Spinner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = timeout
	return s
}

// SetWriter redirects the spinner.
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

// Start begins animating. Starting a running spinner does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.started = time.Now()
	s.stop = make(chan struct{})

	if !writerIsTTY(s.w) {
		fmt.Fprintf(s.w, "%s...\n", s.message)
		return
	}
	go s.animate(s.stop)
}

func (s *Spinner) animate(stop <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for frame := 0; ; frame++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			fmt.Fprintf(s.w, "\r%s  %s", spinnerFrames[frame%len(spinnerFrames)], s.label())
			s.mu.Unlock()
		}
	}
}

// label must be called with s.mu held.
func (s *Spinner) label() string {
	if s.timeout <= 0 {
		return s.message
	}
	left := max(s.timeout-time.Since(s.started), 0)
	return fmt.Sprintf("%s (%ds left)", s.message, int(left.Seconds()))
}

// Stop halts the animation and clears its line. Stopping a stopped spinner
// does nothing.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
	if writerIsTTY(s.w) {
		fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", len(s.label())+4))
	}
}

// StopWithMessage stops the spinner and prints message on its own line.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, message)
}
