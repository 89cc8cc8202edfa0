// Command disk serves the raw 256-byte block protocol of §6.1 over a
// disk image file: one client connection at a time, derived
// (cylinders, sectors) geometry, and a cosmetic seek-delay log
// proportional to cylinder movement.
package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/sisatech/tablewriter"
	"github.com/spf13/cobra"
	"github.com/thanhpk/randstr"

	"github.com/zzzhr97/inodefs/internal/blockproto"
	"github.com/zzzhr97/inodefs/internal/config"
	"github.com/zzzhr97/inodefs/internal/elog"
)

var (
	flagConfig string
	flagImage  string
	flagPort   int
	flagDebug  bool
	flagJSON   bool
)

var rootCmd = &cobra.Command{
	Use:   "disk",
	Short: "serves raw 256-byte blocks over the disk protocol",
	RunE:  runDisk,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagConfig, "config", "", "path to disk.toml")
	flags.StringVar(&flagImage, "image", "", "path to the disk image file (overrides config)")
	flags.IntVar(&flagPort, "port", 0, "listen port (overrides config)")
	flags.BoolVar(&flagDebug, "debug", false, "enable debug logging")
	flags.BoolVar(&flagJSON, "json", false, "emit logs as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// defaultSectors/defaultCylinders size a freshly created image at
// 8192 blocks (2 MiB), comfortably past layout.MinDiskBlocks for the
// 1024-inode geometry.
const (
	defaultSectors   = 32
	defaultCylinders = 256
	seekUnit         = time.Millisecond
)

func runDisk(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadDisk(flagConfig)
	if err != nil {
		return err
	}
	if flagImage != "" {
		cfg.ImagePath = flagImage
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}

	logFile, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	log := elog.New(logFile, flagJSON, flagDebug)

	f, cylinders, sectors, err := openImage(cfg.ImagePath)
	if err != nil {
		return err
	}
	defer f.Close()

	tag := randstr.Hex(8)
	printSummary(cylinders, sectors, tag)
	log.Infof("disk image %s ready, volume %s, %d cylinders x %d sectors", cfg.ImagePath, tag, cylinders, sectors)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Infof("listening on :%d", cfg.Port)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Errorf("accept: %v", err)
			continue
		}
		serveConn(conn, f, cylinders, sectors, log)
	}
}

// openImage opens (creating if absent) the image file at path and
// returns its derived (cylinders, sectors) geometry: an existing
// image's size is divided by defaultSectors blocks; a new image is
// zero-filled to the default size.
func openImage(path string) (*os.File, int, int, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, 0, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, 0, err
	}

	const blockSize = 256
	sectors := defaultSectors
	totalBlocks := int(info.Size()) / blockSize
	if totalBlocks == 0 {
		totalBlocks = defaultCylinders * defaultSectors
		if err := f.Truncate(int64(totalBlocks) * blockSize); err != nil {
			f.Close()
			return nil, 0, 0, err
		}
	}
	cylinders := totalBlocks / sectors
	return f, cylinders, sectors, nil
}

func printSummary(cylinders, sectors int, volumeTag string) {
	tw := tablewriter.NewWriter(os.Stderr)
	tw.SetHeader([]string{"volume", "cylinders", "sectors", "total blocks"})
	tw.Append([]string{volumeTag, fmt.Sprintf("%d", cylinders), fmt.Sprintf("%d", sectors), fmt.Sprintf("%d", cylinders*sectors)})
	tw.Render()
}

// serveConn runs the disk side of the §6.1 protocol for one
// connection until E, EOF, or a transport error.
func serveConn(conn net.Conn, f *os.File, cylinders, sectors int, log *elog.CLI) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	lastCylinder := 0

	for {
		req, err := blockproto.ReadRequest(r)
		if err != nil {
			if err != io.EOF {
				log.Warnf("transport error: %v", err)
			}
			return
		}

		switch req.Op {
		case blockproto.OpInit:
			if _, err := fmt.Fprintf(conn, "%d %d\n", cylinders, sectors); err != nil {
				log.Warnf("write geometry reply: %v", err)
				return
			}

		case blockproto.OpRead:
			seek(log, &lastCylinder, req.Cylinder)
			if !inRange(req.Cylinder, req.Sector, cylinders, sectors) {
				log.Warnf("exceed: read (%d,%d) out of range", req.Cylinder, req.Sector)
				if _, err := io.WriteString(conn, "No\n"); err != nil {
					return
				}
				continue
			}
			buf := make([]byte, 256)
			off := int64(req.Cylinder*sectors+req.Sector) * 256
			if _, err := f.ReadAt(buf, off); err != nil && err != io.EOF {
				log.Warnf("read block: %v", err)
				return
			}
			if _, err := conn.Write(buf); err != nil {
				return
			}

		case blockproto.OpWrite:
			seek(log, &lastCylinder, req.Cylinder)
			if !inRange(req.Cylinder, req.Sector, cylinders, sectors) {
				log.Warnf("exceed: write (%d,%d) out of range", req.Cylinder, req.Sector)
				if _, err := io.WriteString(conn, "No\n"); err != nil {
					return
				}
				continue
			}
			off := int64(req.Cylinder*sectors+req.Sector) * 256
			if _, err := f.WriteAt(req.Payload, off); err != nil {
				log.Warnf("write block: %v", err)
				return
			}
			if _, err := conn.Write(req.Payload); err != nil {
				return
			}

		case blockproto.OpShutdown:
			log.Infof("Goodbye")
			return
		}
	}
}

func inRange(c, s, cylinders, sectors int) bool {
	return c >= 0 && c < cylinders && s >= 0 && s < sectors
}

// seek logs a cosmetic delay proportional to cylinder movement; it
// never sleeps the real protocol deadline-sensitively, it just marks
// wall-clock time pass the way a physical seek would.
func seek(log *elog.CLI, last *int, cylinder int) {
	delta := cylinder - *last
	if delta < 0 {
		delta = -delta
	}
	*last = cylinder
	if delta == 0 {
		return
	}
	log.Debugf("seek %d cylinders", delta)
	time.Sleep(time.Duration(delta) * seekUnit)
}
