// Package dispatch is the command dispatcher (C7): it parses one
// client command line into a verb and arguments, executes it against
// C2-C6, and renders the result text the client protocol expects (one
// line for most commands, one line per entry plus "&" for ls).
package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"

	"github.com/zzzhr97/inodefs/internal/alloc"
	"github.com/zzzhr97/inodefs/internal/blockproto"
	"github.com/zzzhr97/inodefs/internal/blockstore"
	"github.com/zzzhr97/inodefs/internal/dirent"
	"github.com/zzzhr97/inodefs/internal/inode"
	"github.com/zzzhr97/inodefs/internal/layout"
)

// Disk is the subset of *blockproto.Client the dispatcher needs
// directly (only for the "e" command's shutdown handshake — every
// other command goes through the C2-C6 layers).
type Disk interface {
	Shutdown() error
}

// Dispatcher holds the live file-system state for one connected
// client: the collaborators wired over C2-C6, the working directory,
// and the nominal user id the prompt line reports.
type Dispatcher struct {
	fs  *blockstore.Facade
	al  *alloc.Allocator
	ino *inode.Engine
	dir *dirent.Engine
	sw  *shellwords.Parser

	disk Disk

	UID  string
	root int
	cwd  int
}

// New builds a Dispatcher over an already-formatted (or about-to-be
// formatted) file system.
func New(fs *blockstore.Facade, disk Disk) *Dispatcher {
	al := alloc.New(fs)
	ino := inode.New(fs, al)
	sw := shellwords.NewParser()
	sw.ParseEnv = false
	sw.ParseBacktick = false
	return &Dispatcher{
		fs:   fs,
		al:   al,
		ino:  ino,
		dir:  dirent.New(fs, ino),
		sw:   sw,
		disk: disk,
		UID:  "user",
	}
}

// Prompt renders the "<uid>:<abs path>$ " line the client protocol
// sends before every command.
func (d *Dispatcher) Prompt() string {
	return fmt.Sprintf("%s:%s$ ", d.UID, d.absPath())
}

// absPath walks cwd's parent chain up to the root, collecting names
// in reverse, so the prompt always reflects the true inode graph
// rather than a string the client typed.
func (d *Dispatcher) absPath() string {
	var parts []string
	i := d.cwd
	for step := 0; step < d.fs.Geometry().InodeNum+1; step++ {
		if i == d.root {
			break
		}
		n, err := d.fs.ReadInode(i)
		if err != nil {
			return "/?"
		}
		parts = append([]string{n.Name}, parts...)
		i = n.Parent
	}
	return "/" + strings.Join(parts, "/")
}

// Exec runs one command line, returning the result text to send back
// to the client and whether the connection should now be torn down
// (true only for "e"). A non-nil error means a transport-fatal
// condition was observed and the whole process must exit; every other
// failure is folded into the response text as a logical "No".
func (d *Dispatcher) Exec(line string) (response string, exit bool, err error) {
	args, perr := d.sw.Parse(line)
	if perr != nil || len(args) == 0 {
		return "No: bad command", false, nil
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "f":
		return d.cmdFormat()
	case "mk":
		return d.cmdCreate(rest, layout.FileAllAllow)
	case "mkdir":
		return d.cmdCreate(rest, layout.DirAllAllow)
	case "rm":
		return d.cmdRemove(rest, false)
	case "rmdir":
		return d.cmdRemove(rest, true)
	case "cd":
		return d.cmdCd(rest)
	case "ls":
		return d.cmdLs()
	case "cat":
		return d.cmdCat(rest)
	case "w":
		return d.cmdWrite(rest)
	case "i":
		return d.cmdInsert(rest)
	case "d":
		return d.cmdDelete(rest)
	case "stat":
		return d.cmdStat(rest)
	case "pwd":
		return d.absPath(), false, nil
	case "df":
		return d.cmdDf()
	case "e":
		if d.disk != nil {
			if serr := d.disk.Shutdown(); serr != nil {
				return "Goodbye!", true, serr
			}
		}
		return "Goodbye!", true, nil
	default:
		return "No: unknown command", false, nil
	}
}

// classify turns an internal error into a response line, propagating
// only transport-fatal failures to the caller as a real error.
func classify(err error) (string, error) {
	if err == nil {
		return "Yes", nil
	}
	if errors.Is(err, blockproto.ErrTransport) {
		return "", err
	}
	return "No: " + err.Error(), nil
}

func (d *Dispatcher) cmdFormat() (string, bool, error) {
	geo := d.fs.Geometry()

	if err := d.fs.WriteInodeBitmap(layout.NewBitmap(make([]byte, layout.BlockSize))); err != nil {
		return "", false, err
	}
	bbm := layout.NewBitmap(make([]byte, layout.BlockSize))
	bbm.Set(0, true) // reserve physical data block 0 as the permanent null sentinel
	if err := d.fs.WriteBlockBitmap(bbm); err != nil {
		return "", false, err
	}
	if err := d.fs.WriteSuperBlock(&layout.SuperBlock{
		TotalInode: geo.InodeNum,
		TotalBlock: geo.BlockNum,
		FreeInode:  geo.InodeNum,
		FreeBlock:  geo.BlockNum - 1,
	}); err != nil {
		return "", false, err
	}

	root, err := d.al.AllocateInode()
	if err != nil {
		return "", false, err
	}
	if err := d.ino.Build(root, layout.DirAllAllow, "/", 0, 0, 0, root); err != nil {
		return "", false, err
	}
	d.root, d.cwd = root, root

	return "Done", false, nil
}

func (d *Dispatcher) cmdCreate(args []string, info layout.Info) (string, bool, error) {
	if len(args) != 1 {
		return "No: usage: mk|mkdir <name>", false, nil
	}
	_, err := d.dir.CreateEntry(d.cwd, info, args[0], d.al.AllocateInode)
	resp, ferr := classify(err)
	return resp, false, ferr
}

func (d *Dispatcher) cmdRemove(args []string, wantDir bool) (string, bool, error) {
	if len(args) != 1 {
		return "No: usage: rm|rmdir <name>", false, nil
	}
	v, child, err := d.dir.Lookup(d.cwd, args[0])
	if err != nil {
		resp, ferr := classify(err)
		return resp, false, ferr
	}
	n, err := d.fs.ReadInode(child)
	if err != nil {
		resp, ferr := classify(err)
		return resp, false, ferr
	}
	if n.Info.IsDirectory() != wantDir {
		return "No: kind mismatch", false, nil
	}

	if wantDir {
		err = d.dir.DestroyTree(child)
	} else {
		if terr := d.ino.Truncate(child); terr != nil {
			err = terr
		} else {
			err = d.ino.Destroy(child)
		}
	}
	if err != nil {
		resp, ferr := classify(err)
		return resp, false, ferr
	}

	err = d.dir.RemoveEntry(d.cwd, v)
	resp, ferr := classify(err)
	return resp, false, ferr
}

func (d *Dispatcher) cmdCd(args []string) (string, bool, error) {
	if len(args) != 1 {
		return "No: usage: cd <path>", false, nil
	}
	next, err := d.dir.ChangeDir(d.cwd, d.root, args[0])
	if err != nil {
		resp, ferr := classify(err)
		return resp, false, ferr
	}
	d.cwd = next
	return "Yes", false, nil
}

func (d *Dispatcher) cmdLs() (string, bool, error) {
	files, dirs, err := d.dir.List(d.cwd)
	if err != nil {
		resp, ferr := classify(err)
		return resp, false, ferr
	}
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "%s %8d %s\n", f.Info, entrySize(d, f.Child), f.Name)
	}
	b.WriteString("&\n")
	for _, e := range dirs {
		fmt.Fprintf(&b, "%s %8d %s\n", e.Info, entrySize(d, e.Child), e.Name)
	}
	return strings.TrimSuffix(b.String(), "\n"), false, nil
}

func entrySize(d *Dispatcher, child int) int {
	n, err := d.fs.ReadInode(child)
	if err != nil {
		return 0
	}
	return n.SizeFile
}

func (d *Dispatcher) cmdCat(args []string) (string, bool, error) {
	if len(args) != 1 {
		return "No: usage: cat <name>", false, nil
	}
	_, child, err := d.dir.Lookup(d.cwd, args[0])
	if err != nil {
		resp, ferr := classify(err)
		return resp, false, ferr
	}
	n, err := d.fs.ReadInode(child)
	if err != nil {
		resp, ferr := classify(err)
		return resp, false, ferr
	}
	if n.Info.IsDirectory() {
		return "No: is a directory", false, nil
	}
	data, err := d.ino.ReadAll(child)
	if err != nil {
		resp, ferr := classify(err)
		return resp, false, ferr
	}
	return string(data[:n.SizeFile]), false, nil
}

func (d *Dispatcher) cmdWrite(args []string) (string, bool, error) {
	if len(args) != 3 {
		return "No: usage: w <name> <len> <data>", false, nil
	}
	child, n, respErr, err := d.resolveFile(args[0])
	if n != nil && respErr == "" && err == nil {
		length, perr := strconv.Atoi(args[1])
		if perr != nil {
			return "No: bad length", false, nil
		}
		data := clampData([]byte(args[2]), length)
		if terr := d.ino.Truncate(child); terr != nil {
			err = terr
		} else {
			err = d.ino.WriteRange(child, 0, data)
		}
	}
	if respErr != "" {
		return respErr, false, nil
	}
	resp, ferr := classify(err)
	return resp, false, ferr
}

func (d *Dispatcher) cmdInsert(args []string) (string, bool, error) {
	if len(args) != 4 {
		return "No: usage: i <name> <pos> <len> <data>", false, nil
	}
	child, n, respErr, err := d.resolveFile(args[0])
	if n != nil && respErr == "" && err == nil {
		pos, perr := strconv.Atoi(args[1])
		if perr != nil {
			return "No: bad pos", false, nil
		}
		length, perr := strconv.Atoi(args[2])
		if perr != nil {
			return "No: bad length", false, nil
		}
		data := clampData([]byte(args[3]), length)
		err = d.ino.InsertRange(child, pos, data)
	}
	if respErr != "" {
		return respErr, false, nil
	}
	resp, ferr := classify(err)
	return resp, false, ferr
}

func (d *Dispatcher) cmdDelete(args []string) (string, bool, error) {
	if len(args) != 3 {
		return "No: usage: d <name> <pos> <len>", false, nil
	}
	child, n, respErr, err := d.resolveFile(args[0])
	if n != nil && respErr == "" && err == nil {
		pos, perr := strconv.Atoi(args[1])
		if perr != nil {
			return "No: bad pos", false, nil
		}
		length, perr := strconv.Atoi(args[2])
		if perr != nil {
			return "No: bad length", false, nil
		}
		err = d.ino.DeleteRange(child, pos, length)
	}
	if respErr != "" {
		return respErr, false, nil
	}
	resp, ferr := classify(err)
	return resp, false, ferr
}

// resolveFile looks up name in cwd and requires it to be a regular
// file, returning its inode index and decoded record, or a ready-made
// "No" response when the lookup/kind check fails.
func (d *Dispatcher) resolveFile(name string) (child int, n *layout.Inode, respErr string, err error) {
	_, c, lerr := d.dir.Lookup(d.cwd, name)
	if lerr != nil {
		resp, ferr := classify(lerr)
		return 0, nil, resp, ferr
	}
	rn, rerr := d.fs.ReadInode(c)
	if rerr != nil {
		resp, ferr := classify(rerr)
		return 0, nil, resp, ferr
	}
	if rn.Info.IsDirectory() {
		return 0, nil, "No: is a directory", nil
	}
	return c, rn, "", nil
}

// clampData truncates or zero-pads raw to exactly length bytes, the
// way a fixed "len data" argument pair is meant to be interpreted.
func clampData(raw []byte, length int) []byte {
	if length < 0 {
		length = 0
	}
	if length <= len(raw) {
		return raw[:length]
	}
	out := make([]byte, length)
	copy(out, raw)
	return out
}

func (d *Dispatcher) cmdStat(args []string) (string, bool, error) {
	if len(args) != 1 {
		return "No: usage: stat <name>", false, nil
	}
	_, child, err := d.dir.Lookup(d.cwd, args[0])
	if err != nil {
		resp, ferr := classify(err)
		return resp, false, ferr
	}
	n, err := d.fs.ReadInode(child)
	if err != nil {
		resp, ferr := classify(err)
		return resp, false, ferr
	}
	return fmt.Sprintf("%s size=%d access=%s modify=%s change=%s",
		n.Info, n.SizeFile,
		n.TimeAccess.Format("2006-01-02T15:04:05Z"),
		n.TimeModify.Format("2006-01-02T15:04:05Z"),
		n.TimeChange.Format("2006-01-02T15:04:05Z"),
	), false, nil
}

func (d *Dispatcher) cmdDf() (string, bool, error) {
	sb, err := d.fs.ReadSuperBlock()
	if err != nil {
		resp, ferr := classify(err)
		return resp, false, ferr
	}
	return fmt.Sprintf("inodes %d/%d blocks %d/%d",
		sb.FreeInode, sb.TotalInode, sb.FreeBlock, sb.TotalBlock), false, nil
}
