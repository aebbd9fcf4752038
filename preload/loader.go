// Package preload seeds the table from a plain text file of addresses,
// one per line. The file is watched, so appending addresses takes
// effect without restarting the daemon. Loading is additive: removing
// a line never removes the address from the table.
package preload

import (
	"fmt"
	"io/ioutil"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/pftabled/pftabled/core"
	"github.com/pftabled/pftabled/log"
	"github.com/pftabled/pftabled/protocol"
)

// Loader feeds the addresses of a preload file to the table.
type Loader struct {
	sync.RWMutex
	path    string
	table   protocol.Table
	watcher *fsnotify.Watcher
	loaded  int
}

func NewLoader(table protocol.Table) *Loader {
	l := &Loader{table: table}
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		l.watcher = watcher
	}
	return l
}

// Loaded returns how many addresses the last load fed to the table.
func (l *Loader) Loaded() int {
	l.RLock()
	defer l.RUnlock()
	return l.loaded
}

// Load feeds every address in the file to the table and starts
// watching the file for changes.
func (l *Loader) Load(path string) error {
	if core.Exists(path) == false {
		return fmt.Errorf("preload file '%s' does not exist", path)
	}

	l.Lock()
	l.path = path
	l.Unlock()

	if err := l.load(); err != nil {
		return err
	}

	if l.watcher != nil {
		if err := l.watcher.Add(path); err != nil {
			log.Error("preload: could not watch %s: %s", path, err)
			return nil
		}
		go l.monitorWorker()
	}
	return nil
}

// load walks the file line by line. Blank lines and '#' comments are
// skipped, a bad address is logged and skipped without stopping the
// load.
func (l *Loader) load() error {
	l.RLock()
	path := l.path
	l.RUnlock()

	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}

	loaded := 0
	for n, line := range strings.Split(string(raw), "\n") {
		line = core.Trim(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := l.table.Add(line); err != nil {
			log.Warning("preload: %s line %d: %s: %s", path, n+1, log.Yellow(line), err)
			continue
		}
		loaded++
	}

	l.Lock()
	l.loaded = loaded
	l.Unlock()

	log.Info("preload: fed %d addresses from %s", loaded, path)
	return nil
}

func (l *Loader) monitorWorker() {
	for event := range l.watcher.Events {
		if (event.Op&fsnotify.Write == fsnotify.Write) || (event.Op&fsnotify.Remove == fsnotify.Remove) || (event.Op&fsnotify.Rename == fsnotify.Rename) {
			l.RLock()
			path := l.path
			l.RUnlock()

			log.Debug("preload: %s changed, reloading", path)
			if err := l.load(); err != nil {
				log.Error("preload: reload: %s", err)
			}
			// editors that replace the file leave the watch on the
			// old inode, watch the path again
			if event.Op&fsnotify.Write != fsnotify.Write {
				if err := l.watcher.Add(path); err != nil {
					log.Error("preload: could not rewatch %s: %s", path, err)
					return
				}
			}
		}
	}
}

// Close stops watching the preload file.
func (l *Loader) Close() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
