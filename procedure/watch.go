package procedure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/yaoapp/kun/log"
)

// Watch reload the procedures when the files under the root change, until ctx is done
func (procedures *Procedures) Watch(ctx context.Context) error {
	if procedures.root == "" {
		return fmt.Errorf("the procedures are not loaded from a directory")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	err = filepath.Walk(procedures.root, func(file string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			log.Trace("[procedure] watching: %s", file)
			return watcher.Add(file)
		}
		return nil
	})

	if err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				log.Trace("[procedure] watcher exit")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				procedures.handle(watcher, event)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error("[procedure] watch: %s", err.Error())
			}
		}
	}()

	return nil
}

func (procedures *Procedures) handle(watcher *fsnotify.Watcher, event fsnotify.Event) {

	// new directories are watched too
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			log.Trace("[procedure] watching: %s", event.Name)
			if err := watcher.Add(event.Name); err != nil {
				log.Error("[procedure] watch %s: %s", event.Name, err.Error())
			}
			return
		}
	}

	if !strings.HasSuffix(event.Name, Ext) {
		return
	}

	name, err := procedures.name(event.Name)
	if err != nil {
		log.Error("[procedure] %s", err.Error())
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if err := procedures.Remove(name); err != nil {
			log.Error("[procedure] remove %s: %s", name, err.Error())
			return
		}
		log.Info("[procedure] %s removed", name)

	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		if err := procedures.LoadFile(event.Name); err != nil {
			log.Error("[procedure] reload %s: %s", name, err.Error())
			return
		}
		log.Info("[procedure] %s reloaded", name)
	}
}
