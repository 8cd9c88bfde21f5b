// gomill-host is the host console: it streams control commands typed on
// stdin to the controller board and echoes its responses.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"gomill/host/serial"
)

var (
	device = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud   = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
)

func main() {
	flag.Parse()

	port, err := serial.Open(&serial.Config{
		Device:      *device,
		Baud:        *baud,
		ReadTimeout: 100,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer port.Close()

	fmt.Printf("Connected to %s\n", *device)

	// Echo controller output
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := port.Read(buf)
			if err != nil {
				continue
			}
			if 0 < n {
				os.Stdout.Write(buf[:n])
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if _, err := fmt.Fprintf(port, "%s\n", line); err != nil {
			fmt.Fprintf(os.Stderr, "write error: %v\n", err)
			break
		}
	}
}
