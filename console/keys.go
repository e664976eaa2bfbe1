package console

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/term"
)

type Command int

const (
	CmdNone Command = iota
	CmdRecord
	CmdStop
	CmdTogglePM
	CmdUpload
	CmdExit
)

func (c Command) String() string {
	switch c {
	case CmdRecord:
		return "record"
	case CmdStop:
		return "stop"
	case CmdTogglePM:
		return "pm"
	case CmdUpload:
		return "upload"
	case CmdExit:
		return "exit"
	}
	return "none"
}

// ParseKey maps one keypress. 0x03 and 0x04 also quit when the terminal passes them through.
func ParseKey(b []byte) Command {
	if len(b) == 0 {
		return CmdNone
	}
	switch b[0] {
	case 'r', 'R':
		return CmdRecord
	case 's', 'S':
		return CmdStop
	case 'p', 'P':
		return CmdTogglePM
	case 'u', 'U':
		return CmdUpload
	case 'q', 'Q', 0x03, 0x04:
		return CmdExit
	}
	return CmdNone
}

/*
Keys reads the controlling terminal in cbreak mode until ctx is done or stop
is called. Output processing stays on so the display keeps its line starts.
stop waits for the reader and restores the terminal, call it before exiting.
*/
func Keys(ctx context.Context, tty string) (<-chan Command, func() error, error) {
	t, err := term.Open(tty, term.CBreakMode)
	if err != nil {
		return nil, nil, err
	}
	if err := t.SetReadTimeout(200 * time.Millisecond); err != nil {
		t.Restore()
		t.Close()
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	cmds := make(chan Command)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(cmds)
		buf := make([]byte, 3)
		for ctx.Err() == nil {
			n, err := t.Read(buf)
			if err != nil || n == 0 {
				continue
			}
			cmd := ParseKey(buf[:n])
			if cmd == CmdNone {
				continue
			}
			select {
			case cmds <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	var stopErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			<-done
			stopErr = t.Restore()
			if err := t.Close(); stopErr == nil {
				stopErr = err
			}
		})
		return stopErr
	}
	return cmds, stop, nil
}
