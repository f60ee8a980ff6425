package medium

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jacobsa/timeutil"
	"golang.org/x/crypto/ssh"
	"golang.org/x/net/context"
)

// DebuggerLinkMedium is a Medium implemented over an SSH session to a
// ground-support workstation running a background-debug-mode driver, the
// network-attached descendant of the parallel-port BDM link the original
// eefstool used to flash parts on the bench. Every ReadAt/WriteAt turns
// into one round trip of a tiny line-oriented protocol run over the
// session's stdin/stdout; there is no local caching or page buffering
// here, that responsibility belongs to PageWindowMedium layered on top.
type DebuggerLinkMedium struct {
	clock timeutil.Clock
	size  int64

	client  *ssh.Client
	session *ssh.Session
	stdin   *bufio.Writer
	stdout  *bufio.Reader

	writeProtected bool
}

// DialDebuggerLink opens an SSH connection to addr and starts the remote
// driver command, returning a Medium of the given size backed by it. ctx
// governs only the dial; once connected the session outlives it.
func DialDebuggerLink(ctx context.Context, clock timeutil.Clock, addr string, config *ssh.ClientConfig, size int64, driverCommand string) (*DebuggerLinkMedium, error) {
	type dialResult struct {
		client *ssh.Client
		err    error
	}

	resultCh := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", addr, config)
		resultCh <- dialResult{client, err}
	}()

	var client *ssh.Client
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("debuggerlink: dial %s: %w", addr, r.err)
		}
		client = r.client
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("debuggerlink: new session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("debuggerlink: stdin pipe: %w", err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("debuggerlink: stdout pipe: %w", err)
	}

	if err := session.Start(driverCommand); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("debuggerlink: start %q: %w", driverCommand, err)
	}

	return &DebuggerLinkMedium{
		clock:   clock,
		size:    size,
		client:  client,
		session: session,
		stdin:   bufio.NewWriter(stdin),
		stdout:  bufio.NewReader(stdout),
	}, nil
}

// Close ends the driver session and the underlying SSH connection.
func (m *DebuggerLinkMedium) Close() error {
	err := m.session.Close()
	if cerr := m.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (m *DebuggerLinkMedium) roundTrip(cmd string) (string, error) {
	if _, err := fmt.Fprintln(m.stdin, cmd); err != nil {
		return "", fmt.Errorf("debuggerlink: write command: %w", err)
	}
	if err := m.stdin.Flush(); err != nil {
		return "", fmt.Errorf("debuggerlink: flush command: %w", err)
	}

	line, err := m.stdout.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("debuggerlink: read response: %w", err)
	}
	return line, nil
}

// ReadAt sends a READ command and decodes the hex-encoded payload the
// driver writes back on the response line into dst.
func (m *DebuggerLinkMedium) ReadAt(dst []byte, off int64) error {
	line, err := m.roundTrip(fmt.Sprintf("READ %d %d", off, len(dst)))
	if err != nil {
		return err
	}
	payload, err := hex.DecodeString(strings.TrimSpace(line))
	if err != nil {
		return fmt.Errorf("debuggerlink: malformed READ response: %w", err)
	}
	if len(payload) != len(dst) {
		return fmt.Errorf("debuggerlink: READ response carried %d bytes, want %d", len(payload), len(dst))
	}
	copy(dst, payload)
	return nil
}

// WriteAt sends a WRITE command with src hex-encoded inline, the same
// framing ReadAt expects back.
func (m *DebuggerLinkMedium) WriteAt(src []byte, off int64) error {
	if m.writeProtected {
		return fmt.Errorf("medium: write-protected")
	}
	_, err := m.roundTrip(fmt.Sprintf("WRITE %d %d %s", off, len(src), hex.EncodeToString(src)))
	return err
}

func (m *DebuggerLinkMedium) Flush() error {
	_, err := m.roundTrip("FLUSH")
	return err
}

func (m *DebuggerLinkMedium) Now() time.Time {
	return m.clock.Now()
}

func (m *DebuggerLinkMedium) IsWriteProtected() bool {
	return m.writeProtected
}

// SetWriteProtected mirrors the state of the bench's write-enable jumper.
func (m *DebuggerLinkMedium) SetWriteProtected(protected bool) {
	m.writeProtected = protected
}

func (m *DebuggerLinkMedium) Lock() {}

func (m *DebuggerLinkMedium) Unlock() {}

func (m *DebuggerLinkMedium) Size() int64 {
	return m.size
}
