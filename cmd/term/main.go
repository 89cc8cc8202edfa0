// Command term is the terminal client of §6.2: it dials an fsd
// process and relays prompt/command/result/ack lines between the
// server and the user's terminal, colorizing the prompt and result
// when attached to a tty.
//
// Each read is a single raw Read off the socket, mirroring the
// original client: one synchronous command/response pair per
// round trip, so whatever the FS wrote in its one prompt (or result)
// write arrives in one read.
package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var flagAddr string

var rootCmd = &cobra.Command{
	Use:   "term",
	Short: "connects to an fsd process and relays an interactive session",
	RunE:  runTerm,
}

func init() {
	rootCmd.Flags().StringVar(&flagAddr, "addr", "127.0.0.1:9002", "fsd process address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

const readBufSize = 4096

func runTerm(cmd *cobra.Command, args []string) error {
	conn, err := net.Dial("tcp", flagAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	interactive := isatty.IsTerminal(os.Stdin.Fd())
	stdin := bufio.NewReader(os.Stdin)
	buf := make([]byte, readBufSize)

	for {
		prompt, err := readLine(conn, buf)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		printColored(prompt, interactive, color.CyanString)

		line, err := stdin.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return nil
		}
		if len(line) == 0 || line[len(line)-1] != '\n' {
			line += "\n"
		}
		if _, err := io.WriteString(conn, line); err != nil {
			return err
		}

		result, err := readLine(conn, buf)
		if err != nil {
			return err
		}
		printColored(result, interactive, color.GreenString)
		if result == "Goodbye!" {
			return nil
		}

		// single-byte coalescence-guard ack
		if _, err := io.WriteString(conn, "\n"); err != nil {
			return err
		}
	}
}

func readLine(conn net.Conn, buf []byte) (string, error) {
	n, err := conn.Read(buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

func printColored(s string, interactive bool, paint func(string, ...interface{}) string) {
	if interactive {
		fmt.Print(paint(s))
	} else {
		fmt.Print(s)
	}
}
