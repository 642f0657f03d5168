package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

type TargetOutput struct {
	ID          int
	Name        string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	Name  string
	Error error
	Time  time.Time
}

// Manager tracks one display row per target. All methods are safe for
// concurrent use by download workers; rendering only happens between
// StartDisplay and StopDisplay.
type Manager struct {
	outputs     map[int]*TargetOutput
	mutex       sync.RWMutex
	numLines    int
	maxStreams  int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	count       int
	displayWg   sync.WaitGroup
	out         io.Writer
	started     bool
}

func NewManager() *Manager {
	return &Manager{
		outputs:     make(map[int]*TargetOutput),
		maxStreams:  5,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
		out:         os.Stdout,
	}
}

func (m *Manager) SetOutput(w io.Writer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.out = w
}

func (m *Manager) Register(name string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.count++
	m.outputs[m.count] = &TargetOutput{
		ID:          m.count,
		Name:        name,
		Status:      StatusPending,
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
	}
	return m.count
}

func (m *Manager) update(id int, fn func(info *TargetOutput)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		fn(info)
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetMessage(id int, message string) {
	m.update(id, func(info *TargetOutput) { info.Message = message })
}

func (m *Manager) SetStatus(id int, status string) {
	m.update(id, func(info *TargetOutput) { info.Status = status })
}

func (m *Manager) GetStatus(id int) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if info, exists := m.outputs[id]; exists {
		return info.Status
	}
	return "unknown"
}

func (m *Manager) Complete(id int, message string) {
	m.finish(id, StatusSuccess, message)
}

func (m *Manager) Skip(id int, message string) {
	m.finish(id, StatusSkipped, message)
}

func (m *Manager) finish(id int, status, message string) {
	m.update(id, func(info *TargetOutput) {
		info.StreamLines = nil
		if message == "" {
			message = fmt.Sprintf("Completed %s", info.Name)
		}
		info.Message = message
		info.Complete = true
		info.Status = status
	})
}

func (m *Manager) ReportError(id int, err error) {
	m.update(id, func(info *TargetOutput) {
		info.Complete = true
		info.Status = StatusError
		info.Error = err
		info.StreamLines = nil
		if info.Message == "" {
			info.Message = fmt.Sprintf("Failed %s", info.Name)
		}
		m.errors = append(m.errors, ErrorReport{Name: info.Name, Error: err, Time: time.Now()})
	})
}

func (m *Manager) AddStreamLine(id int, line string) {
	m.update(id, func(info *TargetOutput) {
		info.StreamLines = append(info.StreamLines, line)
		if len(info.StreamLines) > m.maxStreams {
			info.StreamLines = info.StreamLines[len(info.StreamLines)-m.maxStreams:]
		}
	})
}

// AddProgressToStream replaces the stream with a bar, or with a running
// counter when total is unknown (negative).
func (m *Manager) AddProgressToStream(id int, current, total int64) {
	m.update(id, func(info *TargetOutput) {
		elapsed := time.Since(info.StartTime).Seconds()
		var display string
		if total > 0 {
			text := fmt.Sprintf("%s / %s", FormatBytes(uint64(max(current, 0))), FormatBytes(uint64(total)))
			display = ProgressBar(current, total, 30) + debugStyle.Render(text)
		} else {
			display = ProgressCounter(current)
		}
		display += fmt.Sprintf(" %s %s", StyleSymbols["bullet"], debugStyle.Render(FormatSpeed(current, elapsed)))
		info.StreamLines = []string{display}
	})
}

func (m *Manager) Errors() []ErrorReport {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([]ErrorReport(nil), m.errors...)
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case StatusSuccess:
		return successStyle.Render(StyleSymbols["pass"])
	case StatusSkipped:
		return infoStyle.Render(StyleSymbols["skip"])
	case StatusError:
		return errorStyle.Render(StyleSymbols["fail"])
	case StatusPending:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status, message string) string {
	switch status {
	case StatusSuccess:
		return successStyle.Render(message)
	case StatusSkipped:
		return infoStyle.Render(message)
	case StatusError:
		return errorStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) sortTargets() (active, completed []*TargetOutput) {
	var all []*TargetOutput
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].ID < all[j].ID
	})
	for _, t := range all {
		if t.Complete {
			completed = append(completed, t)
		} else {
			active = append(active, t)
		}
	}
	return active, completed
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	availableLines := getTerminalHeight() - 3
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	lineCount := 0
	active, completed := m.sortTargets()

	// Completed rows are trimmed first when the terminal is short
	needed := len(completed)
	for _, t := range active {
		needed += 1 + len(t.StreamLines)
	}
	if needed > availableLines {
		keep := max(0, availableLines-(needed-len(completed)))
		if len(completed) > keep {
			completed = completed[len(completed)-keep:]
		}
	}
	if len(completed) > 10 {
		fmt.Fprintf(m.out, "%s\n", infoStyle.Render(fmt.Sprintf("  %d files finished ...", len(completed)-8)))
		completed = completed[len(completed)-8:]
		lineCount++
	}
	for _, t := range completed {
		if lineCount >= availableLines {
			break
		}
		elapsed := t.LastUpdated.Sub(t.StartTime).Round(time.Second)
		fmt.Fprintf(m.out, "  %s %s %s\n", m.GetStatusIndicator(t.Status), debugStyle.Render(elapsed.String()), styleMessage(t.Status, t.Message))
		lineCount++
	}
	for _, t := range active {
		if lineCount >= availableLines {
			break
		}
		message := t.Message
		if message == "" {
			message = "Waiting..."
		}
		elapsed := time.Since(t.StartTime).Round(time.Second)
		fmt.Fprintf(m.out, "  %s %s %s\n", m.GetStatusIndicator(t.Status), debugStyle.Render(elapsed.String()), styleMessage(t.Status, message))
		lineCount++
		for _, line := range t.StreamLines {
			if lineCount >= availableLines {
				break
			}
			fmt.Fprintf(m.out, "      %s\n", streamStyle.Render(line))
			lineCount++
		}
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.started = true
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	if !m.started {
		return
	}
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "    %s %s %s\n",
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(err.Name))
		fmt.Fprintf(m.out, "      %s\n", errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var success, skipped, failures int
	for _, info := range m.outputs {
		switch info.Status {
		case StatusSuccess:
			success++
		case StatusSkipped:
			skipped++
		case StatusError:
			failures++
		}
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+success2Style.Render(fmt.Sprintf("Downloaded %d of %d", success, len(m.outputs))))
	if skipped > 0 {
		fmt.Fprintln(m.out, "  "+infoStyle.Render(fmt.Sprintf("Already complete %d of %d", skipped, len(m.outputs))))
	}
	if failures > 0 {
		fmt.Fprintln(m.out, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
