// Command ircd is the thin CLI front end for the chat core in
// internal/ircd. Everything it does is collaborator work the core itself
// never performs: parsing flags, deriving a server name, and turning a
// port list into bind addresses.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dream-team-kpi/practice3/internal/ircd"
)

const version = "practice3-0.1"

func main() {
	ports := flag.String("ports", "6667", "Comma-separated list of TCP ports to listen on.")
	listenIP := flag.String("listen", "", "IP address to bind to (default: all interfaces).")
	serverName := flag.String("server-name", "", "Server name announced to clients (default: local hostname).")
	verbose := flag.Bool("verbose", false, "Log connection and disconnection events.")
	debug := flag.Bool("debug", false, "Log per-line protocol tracing. Implies -verbose.")
	flag.Parse()

	if *debug {
		*verbose = true
	}

	addrs, err := bindAddresses(*listenIP, *ports)
	if err != nil {
		printUsage(err)
		os.Exit(1)
	}

	name := *serverName
	if name == "" {
		name, err = defaultServerName()
		if err != nil {
			printUsage(err)
			os.Exit(1)
		}
	}

	cfg := ircd.Config{
		ServerName: name,
		Version:    version,
		CreatedAt:  time.Now(),
		Verbose:    *verbose,
		Debug:      *debug,
	}

	core := ircd.NewCore(cfg)

	if err := core.Listen(addrs); err != nil {
		printUsage(errors.Wrap(err, "unable to start listening"))
		os.Exit(1)
	}

	core.Run()
}

// bindAddresses turns a bind IP (possibly empty, meaning all interfaces)
// and a comma/whitespace-separated port list into host:port strings ready
// for net.Listen.
func bindAddresses(ip, portList string) ([]string, error) {
	var addrs []string
	for _, field := range strings.FieldsFunc(portList, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		port, err := strconv.Atoi(field)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid port %q", field)
		}
		if port < 1 || port > 65535 {
			return nil, errors.Errorf("port %d out of range", port)
		}
		addrs = append(addrs, fmt.Sprintf("%s:%d", ip, port))
	}

	if len(addrs) == 0 {
		return nil, errors.New("no ports given")
	}

	return addrs, nil
}

// defaultServerName derives a server name from the local hostname,
// truncated to the 63-byte limit the wire protocol's server-name field
// allows (§6).
func defaultServerName() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", errors.Wrap(err, "unable to determine hostname")
	}
	if len(host) > 63 {
		host = host[:63]
	}
	return host, nil
}

func printUsage(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s <arguments>\n", os.Args[0])
	flag.PrintDefaults()
}
