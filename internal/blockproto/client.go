package blockproto

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// Client is the file-system process's side of the disk connection: it
// issues one command at a time and always reads the matching reply
// before issuing the next, preventing the message coalescence the
// protocol is fragile to.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	mu   sync.Mutex

	Cylinders int
	Sectors   int
}

// Dial connects to a disk process and performs the initial geometry
// query (the "I" command).
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(ErrTransport, err.Error())
	}
	c := &Client{conn: conn, r: bufio.NewReader(conn)}
	if err := c.queryGeometry(); err != nil {
		conn.Close() // nolint:errcheck
		return nil, err
	}
	return c, nil
}

// NewClient wraps an already-established connection (used by tests
// with an in-memory pipe).
func NewClient(conn net.Conn) (*Client, error) {
	c := &Client{conn: conn, r: bufio.NewReader(conn)}
	if err := c.queryGeometry(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) queryGeometry() error {
	if err := WriteRequest(c.conn, &Request{Op: OpInit}); err != nil {
		return err
	}
	line, err := readLine(c.r)
	if err != nil {
		return err
	}
	cyl, sec, err := parseCylinderSector(line)
	if err != nil {
		return err
	}
	c.Cylinders, c.Sectors = cyl, sec
	return nil
}

// TotalBlocks is Cylinders * Sectors.
func (c *Client) TotalBlocks() int {
	return c.Cylinders * c.Sectors
}

// linearToCS maps a linear block index to (cylinder, sector).
func (c *Client) linearToCS(b int) (int, int) {
	return b / c.Sectors, b % c.Sectors
}

// ReadRaw reads the BlockSize payload of linear block b.
func (c *Client) ReadRaw(b int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cyl, sec := c.linearToCS(b)
	if err := WriteRequest(c.conn, &Request{Op: OpRead, Cylinder: cyl, Sector: sec}); err != nil {
		return nil, err
	}
	buf := make([]byte, BlockSize)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, errors.Wrap(ErrTransport, err.Error())
	}
	return buf, nil
}

// WriteRaw writes the BlockSize payload to linear block b and waits
// for the disk's acknowledgement echo before returning.
func (c *Client) WriteRaw(b int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cyl, sec := c.linearToCS(b)
	if err := WriteRequest(c.conn, &Request{Op: OpWrite, Cylinder: cyl, Sector: sec, Payload: payload}); err != nil {
		return err
	}
	ack := make([]byte, BlockSize)
	if _, err := io.ReadFull(c.r, ack); err != nil {
		return errors.Wrap(ErrTransport, err.Error())
	}
	return nil
}

// Shutdown sends "E" and closes the connection. The disk process does
// not reply to shutdown.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := WriteRequest(c.conn, &Request{Op: OpShutdown})
	closeErr := c.conn.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return errors.Wrap(ErrTransport, closeErr.Error())
	}
	return nil
}
