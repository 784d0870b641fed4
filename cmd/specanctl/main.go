package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/dougsko/specand/pkg/client"
)

var fOptions struct {
	SocketPath string
	Command    string
	Timeout    time.Duration
	Raw        bool
}

func optionsSet() *pflag.FlagSet {
	set := pflag.NewFlagSet("specanctl", pflag.ExitOnError)

	set.StringVarP(&fOptions.SocketPath, "socket", "s", "/tmp/specand.sock", "Unix socket path")
	set.StringVarP(&fOptions.Command, "cmd", "c", "", "Command to send (e.g. 'STATUS', 'GET:fsw|FREQUENCY_CENTER|Win1')")
	set.DurationVarP(&fOptions.Timeout, "timeout", "t", client.DefaultTimeout, "Response timeout")
	set.BoolVar(&fOptions.Raw, "raw", false, "Print the response line only, exit 0 even on error")

	return set
}

func main() {
	set := optionsSet()
	set.Usage = showHelp
	set.Parse(os.Args[1:])

	if fOptions.SocketPath == "" {
		fmt.Fprintf(os.Stderr, "Socket path is required\n")
		os.Exit(1)
	}

	if fOptions.Command == "" {
		if set.NArg() == 0 {
			showHelp()
			return
		}
		fOptions.Command = strings.Join(set.Args(), " ")
	}

	c := client.NewSocketClient(fOptions.SocketPath)
	c.SetTimeout(fOptions.Timeout)

	response, err := c.SendCommand(fOptions.Command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", response.String())
	if !fOptions.Raw && response.Err() != nil {
		os.Exit(2)
	}
}

func showHelp() {
	fmt.Println("specanctl - spectrum analyzer daemon control tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command>\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	optionsSet().PrintDefaults()
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  STATUS                                  Get daemon status")
	fmt.Println("  SESSIONS                                List open instrument sessions")
	fmt.Println("  SET:<inst>|<attr>|<selector>|<value>    Set an attribute")
	fmt.Println("  GET:<inst>|<attr>[|<selector>]          Read an attribute")
	fmt.Println("  WRITE:<inst>|<scpi>                     Send a raw command")
	fmt.Println("  QUERY:<inst>|<scpi>                     Send a raw query")
	fmt.Println("  TRACE:<inst>|<capacity>|<scpi>[|<label>]  Read a float array")
	fmt.Println("  SPECTRUM:<inst>[|<capacity>|<fft>|<window>]  Spectrum of the I/Q capture")
	fmt.Println("  TIMEOUT:<inst>[|<ms>]                   Read or set the I/O timeout")
	fmt.Println("  JOURNAL[:<limit>|<inst>]                Recent gateway calls")
	fmt.Println("  TRACES[:<limit>|<inst>]                 Saved traces")
	fmt.Println("  RELOAD                                  Reload the attribute table")
	fmt.Println("  PING                                    Test connection")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s STATUS\n", os.Args[0])
	fmt.Printf("  %s 'SET:fsw|FREQUENCY_CENTER|Win1|2.4e9'\n", os.Args[0])
	fmt.Printf("  %s 'TRACE:fsw|1001|TRAC1:DATA? TRACE1|baseline'\n", os.Args[0])
	fmt.Printf("  echo 'STATUS' | nc -U /tmp/specand.sock\n")
}
