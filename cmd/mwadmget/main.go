// Command mwadmget asks an mwadmget server to stage MWA files off tape.
//
// The protocol is a single length-prefixed JSON request over TCP (a
// 4-byte big-endian length followed by {"files": [...]}) answered by a
// 2-byte big-endian status code. A zero status means every file is staged;
// any other value is one of the exit codes below, which this command exits
// with for compatibility with existing tooling.
package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Exit codes, fixed by the staging protocol.
const (
	exitSocketTimeout = 1
	exitIO            = 2
	exitProtocol      = 3
	exitNotMWA        = 4
	exitNotFound      = 5
	exitDB            = 6
	exitCommand       = 7
	exitUnknown       = 8
	exitConnection    = 9
	exitArgs          = 10
	exitLimit         = 11
)

const defaultPort = 9898

type stageRequest struct {
	Files []string `json:"files"`
}

var rootCmd = &cobra.Command{
	Use:   "mwadmget",
	Short: "Stage MWA files from tape via an mwadmget server",
	RunE: func(cmd *cobra.Command, args []string) error {
		files, _ := cmd.Flags().GetString("files")
		server, _ := cmd.Flags().GetString("server")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		if files == "" {
			fmt.Fprintln(os.Stderr, "no files given")
			os.Exit(exitArgs)
		}

		code, err := stage(strings.Split(files, ","), server, timeout)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(classify(err))
		}
		if code != 0 {
			fmt.Fprintf(os.Stderr, "server returned status %d\n", code)
			os.Exit(int(code))
		}
		return nil
	},
}

func main() {
	rootCmd.Flags().StringP("files", "f", "", "Comma-separated MWA file(s) to stage")
	rootCmd.Flags().StringP("server", "s", "localhost", "mwadmget server host")
	rootCmd.Flags().Duration("timeout", 0, "Socket timeout (0 waits indefinitely)")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUnknown)
	}
}

func stage(files []string, server string, timeout time.Duration) (uint16, error) {
	payload, err := json.Marshal(stageRequest{Files: files})
	if err != nil {
		return 0, err
	}

	addr := fmt.Sprintf("%s:%d", server, defaultPort)
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	msg := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(msg, uint32(len(payload)))
	copy(msg[4:], payload)
	if _, err := conn.Write(msg); err != nil {
		return 0, err
	}

	var status uint16
	if err := binary.Read(conn, binary.BigEndian, &status); err != nil {
		return 0, err
	}
	return status, nil
}

func classify(err error) int {
	var nerr net.Error
	switch {
	case asNetError(err, &nerr) && nerr.Timeout():
		return exitSocketTimeout
	case isConnError(err):
		return exitConnection
	default:
		return exitIO
	}
}

func asNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if ok {
		*target = ne
	}
	return ok
}

func isConnError(err error) bool {
	_, ok := err.(*net.OpError)
	return ok
}
