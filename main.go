package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	golog "log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/pftabled/pftabled/config"
	"github.com/pftabled/pftabled/control"
	"github.com/pftabled/pftabled/core"
	"github.com/pftabled/pftabled/log"
	"github.com/pftabled/pftabled/log/loggers"
	"github.com/pftabled/pftabled/pftable"
	"github.com/pftabled/pftabled/preload"
	"github.com/pftabled/pftabled/sandbox"
	"github.com/pftabled/pftabled/statistics"
)

var (
	tableName   = ""
	socketFile  = ""
	caCert      = ""
	serverCert  = ""
	serverKey   = ""
	configFile  = "/etc/pftabled/pftabled.json"
	preloadFile = ""
	logFile     = ""
	logUTC      = true
	logMicro    = false
	debug       = false
	showVersion = false

	err              = (error)(nil)
	daemonConfig     = (*config.Config)(nil)
	daemonConfigLock = sync.RWMutex{}
	table            = (*pftable.Table)(nil)
	stats            = (*statistics.Statistics)(nil)
	server           = (*control.Server)(nil)
	preloader        = (*preload.Loader)(nil)
	loggerMgr        = (*loggers.LoggerManager)(nil)
	configWatcher    = (*fsnotify.Watcher)(nil)
	sigChan          chan os.Signal
)

func init() {
	flag.StringVar(&tableName, "table", tableName, "Name of the pf table to serve.")
	flag.StringVar(&socketFile, "socket", socketFile, "Path of the control socket.")
	flag.StringVar(&caCert, "ca", caCert, "CA certificate clients are verified against.")
	flag.StringVar(&serverCert, "cert", serverCert, "Server TLS certificate.")
	flag.StringVar(&serverKey, "key", serverKey, "Server TLS certificate key.")
	flag.StringVar(&configFile, "config-file", configFile, "Path to the JSON configuration file.")
	flag.StringVar(&preloadFile, "preload", preloadFile, "File of addresses fed to the table at startup.")

	flag.StringVar(&logFile, "log-file", logFile, "Write logs to this file instead of the standard output.")
	flag.BoolVar(&logUTC, "log-utc", logUTC, "Print timestamps in UTC.")
	flag.BoolVar(&logMicro, "log-micro", logMicro, "Print timestamps with microsecond precision.")
	flag.BoolVar(&debug, "debug", debug, "Enable debug logs.")
	flag.BoolVar(&showVersion, "version", showVersion, "Show daemon version and exit.")
}

func setupLogging() {
	golog.SetOutput(ioutil.Discard)
	if debug {
		log.SetLogLevel(log.DEBUG)
	} else {
		log.SetLogLevel(log.INFO)
	}
	log.SetLogUTC(logUTC)
	log.SetLogMicro(logMicro)
	if logFile != "" {
		log.OpenFile(logFile)
	}
}

func setupSignals() {
	sigChan = make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGUSR1)
}

func loadDiskConfiguration(reload bool) {
	raw, err := config.Load(configFile)
	if err != nil || len(raw) == 0 {
		if reload {
			// Sometimes we may receive 2 write events on
			// monitorConfigWorker, which may lead to read 0 bytes.
			log.Warning("Error loading configuration from disk %s: %s", configFile, err)
		}
		return
	}

	newConfig, err := config.Parse(raw)
	if err != nil {
		log.Error("Error parsing configuration %s: %s", configFile, err)
		return
	}
	daemonConfigLock.Lock()
	daemonConfig = &newConfig
	daemonConfigLock.Unlock()
	applyLoggingOptions(!reload)

	if !reload && configWatcher != nil {
		if err := configWatcher.Add(configFile); err != nil {
			log.Error("Could not watch path: %s", err)
			return
		}
		go monitorConfigWorker()
	}
}

// currentConfig returns the configuration loaded last. The pointer is
// swapped on live reloads, so callers must not cache it.
func currentConfig() *config.Config {
	daemonConfigLock.RLock()
	defer daemonConfigLock.RUnlock()
	return daemonConfig
}

// applyLoggingOptions puts the logging options of the configuration
// file into effect. Only these take effect on a live reload, table,
// socket and TLS changes need a restart.
func applyLoggingOptions(firstLoad bool) {
	cfg := currentConfig()
	cfg.RLock()
	defer cfg.RUnlock()

	if cfg.LogLevel != nil {
		log.SetLogLevel(int(*cfg.LogLevel))
	}
	if debug {
		// -debug always wins
		log.SetLogLevel(log.DEBUG)
	}
	if cfg.LogUTC != log.GetLogUTC() {
		log.SetLogUTC(cfg.LogUTC)
	}
	if cfg.LogMicro != log.GetLogMicro() {
		log.SetLogMicro(cfg.LogMicro)
	}
	if logFile == "" && cfg.LogFile != "" {
		log.Close()
		log.OpenFile(cfg.LogFile)
	}

	if firstLoad && len(cfg.Loggers) > 0 {
		loggerMgr.Load(cfg.Loggers)
		log.SetForwardWriter(loggerMgr)
	}
}

func monitorConfigWorker() {
	for event := range configWatcher.Events {
		if (event.Op&fsnotify.Write == fsnotify.Write) || (event.Op&fsnotify.Remove == fsnotify.Remove) {
			loadDiskConfiguration(true)
		}
	}
}

// resolvePaths settles every path and name the daemon uses, in the
// documented order: command line flag, environment variable,
// configuration file, built-in default.
func resolvePaths() {
	fileTable, fileSocket, fileCA, fileCert, fileKey, filePreload := "", "", "", "", "", ""
	if cfg := currentConfig(); cfg != nil {
		cfg.RLock()
		fileTable = cfg.Table
		fileSocket = cfg.Socket
		fileCA = cfg.TLS.CACert
		fileCert = cfg.TLS.ServerCert
		fileKey = cfg.TLS.ServerKey
		filePreload = cfg.Preload
		cfg.RUnlock()
	}

	tableName = config.Resolve(tableName, config.EnvTable, fileTable, config.DefaultTable)
	socketFile = config.Resolve(socketFile, config.EnvSocket, fileSocket, config.DefaultSocket)
	caCert = config.Resolve(caCert, config.EnvCACert, fileCA, config.DefaultCACert)
	serverCert = config.Resolve(serverCert, config.EnvCert, fileCert, config.DefaultCert)
	serverKey = config.Resolve(serverKey, config.EnvKey, fileKey, config.DefaultKey)
	if preloadFile == "" {
		preloadFile = filePreload
	}

	// unveil needs the paths the way the kernel will see them
	for _, path := range []*string{&socketFile, &caCert, &serverCert, &serverKey, &preloadFile} {
		if *path, err = core.ExpandPath(*path); err != nil {
			log.Fatal("%s", err)
		}
	}
}

func effectiveLogFile() string {
	if logFile != "" {
		return logFile
	}
	cfg := currentConfig()
	if cfg == nil {
		return ""
	}
	cfg.RLock()
	defer cfg.RUnlock()
	return cfg.LogFile
}

func confineDaemon() {
	paths := sandbox.Paths{
		ReadOnly: []string{caCert, serverCert, serverKey},
		Socket:   socketFile,
		LogFile:  effectiveLogFile(),
	}
	if core.Exists(configFile) {
		paths.ReadOnly = append(paths.ReadOnly, configFile)
	}
	if preloadFile != "" {
		paths.ReadOnly = append(paths.ReadOnly, preloadFile)
	}

	withSyslog := false
	if cfg := currentConfig(); cfg != nil {
		cfg.RLock()
		withSyslog = len(cfg.Loggers) > 0
		cfg.RUnlock()
	}
	if withSyslog {
		// the syslog logger reconnects to /dev/log on write errors
		paths.ReadWrite = append(paths.ReadWrite, "/dev/log")
	}

	if err := sandbox.Confine(paths); err != nil {
		log.Fatal("sandbox: %s", err)
	}
}

func doCleanup() {
	log.Info("Cleaning up ...")
	if server != nil {
		if err := server.Close(); err != nil {
			log.Warning("closing control socket: %s", err)
		}
	}
	if preloader != nil {
		preloader.Close()
	}
	if configWatcher != nil {
		configWatcher.Close()
	}
	if table != nil {
		table.Close()
	}
	if stats != nil {
		log.Raw("%s", stats.String())
	}
	log.Close()
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Println(core.Version)
		os.Exit(0)
	}

	if configFile, err = core.ExpandPath(configFile); err != nil {
		log.Fatal("%s", err)
	}

	setupLogging()

	loggerMgr = loggers.NewLoggerManager()
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		configWatcher = watcher
	}
	loadDiskConfiguration(false)
	resolvePaths()
	setupSignals()

	log.Important("Starting %s v%s", core.Name, core.Version)

	if table, err = pftable.Open(tableName); err != nil {
		log.Fatal("%s", err)
	}
	log.Info("Attached to pf table %q with %d addresses", table.Name(), table.Len())

	confineDaemon()

	serverTLS, tlsErr := control.ServerTLSConfig(caCert, serverCert, serverKey)
	if tlsErr != nil {
		log.Fatal("%s", tlsErr)
	}

	stats = statistics.New()

	if preloadFile != "" {
		log.Info("Preloading addresses from %s ...", preloadFile)
		preloader = preload.NewLoader(stats.WrapTable(table))
		if err = preloader.Load(preloadFile); err != nil {
			log.Fatal("%s", err)
		}
	}

	server = control.NewServer(socketFile, serverTLS, stats.WrapTable(table), stats)
	if err = server.Start(); err != nil {
		log.Fatal("%s", err)
	}

	log.Info("Serving table %q on %s", tableName, socketFile)
	for true {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGUSR1 {
				log.Raw("%s", stats.String())
				continue
			}
			log.Raw("\n")
			log.Important("Got signal: %v", sig)
			doCleanup()
			os.Exit(0)
		}
	}
}
