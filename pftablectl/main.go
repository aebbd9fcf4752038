package main

import (
	"bufio"
	"flag"
	"fmt"
	"io/ioutil"
	golog "log"
	"os"
	"strings"

	"github.com/pftabled/pftabled/config"
	"github.com/pftabled/pftabled/control"
	"github.com/pftabled/pftabled/core"
	"github.com/pftabled/pftabled/log"
)

var (
	socketFile  = ""
	caCert      = ""
	clientCert  = ""
	clientKey   = ""
	debug       = false
	showVersion = false
)

func init() {
	flag.StringVar(&socketFile, "socket", socketFile, "Path of the control socket.")
	flag.StringVar(&caCert, "ca", caCert, "CA certificate the server is verified against.")
	flag.StringVar(&clientCert, "cert", clientCert, "Client TLS certificate.")
	flag.StringVar(&clientKey, "key", clientKey, "Client TLS certificate key.")
	flag.BoolVar(&debug, "debug", debug, "Enable debug logs.")
	flag.BoolVar(&showVersion, "version", showVersion, "Show version and exit.")
}

// run sends the command given on the command line or in TABLE_COMMAND,
// or feeds the standard input line by line over a single connection.
func run(client *control.Client, command string) error {
	if command != "" {
		reply, err := client.Send(command)
		if err != nil {
			return err
		}
		fmt.Print(reply)
		return nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		command := core.Trim(scanner.Text())
		if command == "" {
			continue
		}
		reply, err := client.Send(command)
		if err != nil {
			return err
		}
		fmt.Print(reply)
	}
	return scanner.Err()
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Println(core.Version)
		os.Exit(0)
	}

	golog.SetOutput(ioutil.Discard)
	if debug {
		log.SetLogLevel(log.DEBUG)
	} else {
		log.SetLogLevel(log.WARNING)
	}

	socketFile = config.Resolve(socketFile, config.EnvSocket, "", config.DefaultSocket)
	caCert = config.Resolve(caCert, config.EnvCACert, "", config.DefaultCACert)
	clientCert = config.Resolve(clientCert, config.EnvCert, "", config.DefaultCert)
	clientKey = config.Resolve(clientKey, config.EnvKey, "", config.DefaultKey)

	for _, path := range []*string{&socketFile, &caCert, &clientCert, &clientKey} {
		expanded, err := core.ExpandPath(*path)
		if err != nil {
			log.Fatal("%s", err)
		}
		*path = expanded
	}

	command := strings.Join(flag.Args(), " ")
	if command == "" {
		command = os.Getenv(config.EnvCommand)
	}

	clientTLS, err := control.ClientTLSConfig(caCert, clientCert, clientKey)
	if err != nil {
		log.Fatal("%s", err)
	}
	client, err := control.Dial(socketFile, clientTLS)
	if err != nil {
		log.Fatal("Error connecting to %s: %s", socketFile, err)
	}
	defer client.Close()

	if err := run(client, command); err != nil {
		client.Close()
		log.Fatal("%s", err)
	}
}
