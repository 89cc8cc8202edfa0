// Command fsd is the file-system server: it connects to a disk
// process, derives its geometry from the queried (cylinders, sectors),
// and serves one client at a time over the line-oriented protocol of
// §6.2, dispatching each command through internal/dispatch.
package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/zzzhr97/inodefs/internal/blockproto"
	"github.com/zzzhr97/inodefs/internal/blockstore"
	"github.com/zzzhr97/inodefs/internal/config"
	"github.com/zzzhr97/inodefs/internal/dispatch"
	"github.com/zzzhr97/inodefs/internal/elog"
	"github.com/zzzhr97/inodefs/internal/layout"
)

var (
	flagConfig   string
	flagDiskAddr string
	flagPort     int
	flagDebug    bool
	flagJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "fsd",
	Short: "serves the inode file system over a line-oriented client protocol",
	RunE:  runFS,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagConfig, "config", "", "path to fsd.toml")
	flags.StringVar(&flagDiskAddr, "disk", "", "address of the disk process (overrides config)")
	flags.IntVar(&flagPort, "port", 0, "listen port (overrides config)")
	flags.BoolVar(&flagDebug, "debug", false, "enable debug logging")
	flags.BoolVar(&flagJSON, "json", false, "emit logs as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runFS(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFS(flagConfig)
	if err != nil {
		return err
	}
	if flagDiskAddr != "" {
		cfg.DiskAddr = flagDiskAddr
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

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Infof("listening on :%d, disk at %s", cfg.Port, cfg.DiskAddr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Errorf("accept: %v", err)
			continue
		}
		if err := serveClient(conn, cfg, log); err != nil {
			log.Errorf("session ended: %v", err)
		}
	}
}

// serveClient handles exactly one client connection to completion: it
// dials the disk fresh (the design has one disk connection per FS
// session), builds a Dispatcher over it, and alternates prompt/
// command/result/ack until "e" or a transport-fatal error.
func serveClient(conn net.Conn, cfg config.FS, log *elog.CLI) error {
	defer conn.Close()

	disk, err := blockproto.Dial(cfg.DiskAddr)
	if err != nil {
		return err
	}

	geo := layout.NewGeometry(disk.TotalBlocks())
	fs := blockstore.New(disk, geo)
	d := dispatch.New(fs, disk)
	d.UID = cfg.UID

	r := bufio.NewReader(conn)
	for {
		if _, err := io.WriteString(conn, d.Prompt()); err != nil {
			disk.Shutdown() // nolint:errcheck
			return err
		}

		line, err := r.ReadString('\n')
		if err != nil {
			disk.Shutdown() // nolint:errcheck
			return err
		}

		resp, exit, err := d.Exec(line) // "e" performs its own disk.Shutdown()
		if err != nil {
			return err
		}

		if _, werr := io.WriteString(conn, resp); werr != nil {
			disk.Shutdown() // nolint:errcheck
			return werr
		}
		if exit {
			return nil
		}

		// consume the client's single-byte coalescence-guard ack
		if _, err := r.ReadByte(); err != nil {
			disk.Shutdown() // nolint:errcheck
			return err
		}
	}
}
