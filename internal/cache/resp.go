package cache

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// replyKind enumerates the subset of RESP types the provider understands.
type replyKind string

const (
	kindSimple  replyKind = "+"
	kindBulk    replyKind = "$"
	kindInteger replyKind = ":"
	kindNil     replyKind = "_"
)

type respReply struct {
	kind replyKind
	data []byte
}

// serverError is an error reply sent by the server; the connection stays usable.
type serverError string

func (e serverError) Error() string { return "valkey: " + string(e) }

func isServerError(err error) bool {
	var se serverError
	return errors.As(err, &se)
}

// respConn wraps a network connection with RESP2 encoding helpers.
type respConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	writer       *bufio.Writer
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func newRespConn(conn net.Conn, readTimeout, writeTimeout time.Duration) *respConn {
	return &respConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func (c *respConn) close() {
	_ = c.conn.Close()
}

func (c *respConn) roundTrip(command string, args ...any) (respReply, error) {
	if err := c.write(command, args...); err != nil {
		return respReply{}, err
	}
	return c.read()
}

func (c *respConn) write(command string, args ...any) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	fmt.Fprintf(c.writer, "*%d\r\n", len(args)+1)
	c.writeBulk([]byte(command))
	for _, arg := range args {
		switch v := arg.(type) {
		case []byte:
			c.writeBulk(v)
		case string:
			c.writeBulk([]byte(v))
		default:
			return fmt.Errorf("unsupported RESP argument %T", arg)
		}
	}
	return c.writer.Flush()
}

// writeBulk relies on bufio.Writer's sticky error, surfaced by Flush.
func (c *respConn) writeBulk(part []byte) {
	fmt.Fprintf(c.writer, "$%d\r\n", len(part))
	c.writer.Write(part)
	c.writer.WriteString("\r\n")
}

func (c *respConn) read() (respReply, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return respReply{}, err
	}
	prefix, err := c.reader.ReadByte()
	if err != nil {
		return respReply{}, err
	}
	line, err := c.readLine()
	if err != nil {
		return respReply{}, err
	}

	switch prefix {
	case '+':
		return respReply{kind: kindSimple, data: line}, nil
	case '-':
		return respReply{}, serverError(line)
	case ':':
		return respReply{kind: kindInteger, data: line}, nil
	case '_':
		return respReply{kind: kindNil}, nil
	case '$':
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return respReply{}, fmt.Errorf("bulk length: %w", err)
		}
		if size < 0 {
			return respReply{kind: kindNil}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(c.reader, buf); err != nil {
			return respReply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return respReply{}, errors.New("invalid bulk termination")
		}
		return respReply{kind: kindBulk, data: buf[:size]}, nil
	}
	return respReply{}, fmt.Errorf("unexpected RESP prefix %q", prefix)
}

func (c *respConn) readLine() ([]byte, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")), nil
}
