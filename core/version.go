package core

// Name of the daemon.
const Name = "pftabled"

// Version of the daemon.
const Version = "1.0.2"
