package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/encodeous/strand/state"
)

const ipcTimeout = 5 * time.Second

// Inspector serves the control socket read by `strand inspect`.
type Inspector struct {
	path     string
	listener net.Listener
}

func (i *Inspector) Init(s *state.State) error {
	i.path = s.ControlSocketPath()
	if i.path == "" {
		s.Log.Debug("control socket disabled")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(i.path), 0755); err != nil {
		return err
	}
	// a previous daemon may have left its socket behind
	if err := os.Remove(i.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	l, err := net.Listen("unix", i.path)
	if err != nil {
		return fmt.Errorf("failed to listen on control socket %s: %w", i.path, err)
	}
	i.listener = l
	s.Log.Debug("listening on control socket", "path", i.path)

	s.Env.Go(func() error {
		<-s.Context.Done()
		_ = l.Close()
		return nil
	})
	s.Env.Go(func() error {
		for {
			conn, err := l.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) || s.Context.Err() != nil {
					return nil
				}
				s.Log.Warn("failed to accept control connection", "error", err)
				continue
			}
			err = handleConn(s, conn)
			if err != nil {
				s.Log.Debug("control connection failed", "error", err)
			}
		}
	})
	return nil
}

func (i *Inspector) Cleanup(s *state.State) error {
	if i.listener == nil {
		return nil
	}
	_ = i.listener.Close()
	err := os.Remove(i.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func handleConn(s *state.State, conn net.Conn) error {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(ipcTimeout)); err != nil {
		return err
	}
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	if err := HandleIPC(s, rw); err != nil {
		return err
	}
	return rw.Flush()
}

// HandleIPC answers a single control command read from rw.
func HandleIPC(s *state.State, rw *bufio.ReadWriter) error {
	cmd, err := rw.ReadString('\n')
	if err != nil {
		return err
	}
	cmd = strings.TrimSpace(cmd)
	switch cmd {
	case "inspect":
		_, err = rw.WriteString(Inspect(Get[*Router](s)))
	default:
		_, err = rw.WriteString(fmt.Sprintf("error: unknown command %s\n", cmd))
	}
	if err != nil {
		return err
	}
	return rw.WriteByte(0)
}

// Inspect renders the router's neighbour networks and routing table.
func Inspect(r *Router) string {
	sb := strings.Builder{}
	sb.WriteString("Neighbours:\n")
	neigh := r.Neighbours()
	if neigh.Len() == 0 {
		sb.WriteString(" (none)\n")
	}
	for _, n := range neigh.Networks() {
		sb.WriteString(fmt.Sprintf(" - %s\n", n))
	}

	sb.WriteString("\nRoute Table:\n")
	routes := r.Table.List()
	if len(routes) == 0 {
		sb.WriteString(" (none)\n")
	}
	for _, e := range routes {
		sb.WriteString(fmt.Sprintf(" - %s\n", e))
	}
	return sb.String()
}

// IPCGet sends cmd to the daemon listening on socket and returns its reply.
func IPCGet(socket, cmd string) (string, error) {
	conn, err := net.DialTimeout("unix", socket, ipcTimeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	if err = conn.SetDeadline(time.Now().Add(ipcTimeout)); err != nil {
		return "", err
	}
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	_, err = rw.WriteString(cmd + "\n")
	if err != nil {
		return "", err
	}
	err = rw.Flush()
	if err != nil {
		return "", err
	}

	res, err := rw.ReadString(0)
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSuffix(res, "\x00"), nil
}
