package config

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Path is the config file or directory consulted by Get. The CLI sets
// it from -config before anything reads configuration.
var Path = "media-archiver.yaml"

var instance *MainArchiverConfig
var singletonLock = &sync.Once{}

func reloadConfig() (*MainArchiverConfig, error) {
	c := NewDefaultMainConfig()

	// First-run convenience: write the defaults out so there's a file
	// to edit.
	info, err := os.Stat(Path)
	if os.IsNotExist(err) {
		fmt.Println("Generating new configuration...")
		configBytes, err := yaml.Marshal(c)
		if err != nil {
			return nil, err
		}
		if err = os.WriteFile(Path, configBytes, 0644); err != nil {
			return nil, err
		}
		info, err = os.Stat(Path)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	pathsOrdered := make([]string, 0)
	if info.IsDir() {
		logrus.Info("Config is a directory - loading all files over top of each other")

		entries, err := os.ReadDir(Path)
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
				continue
			}
			pathsOrdered = append(pathsOrdered, path.Join(Path, name))
		}

		sort.Strings(pathsOrdered)
	} else {
		pathsOrdered = append(pathsOrdered, Path)
	}

	for _, p := range pathsOrdered {
		logrus.Info("Loading config file: ", p)
		buffer, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if err = yaml.Unmarshal(buffer, &c); err != nil {
			return nil, err
		}
	}

	return &c, nil
}

func Get() *MainArchiverConfig {
	if instance == nil {
		singletonLock.Do(func() {
			c, err := reloadConfig()
			if err != nil {
				logrus.Fatal(err)
			}
			instance = c
		})
	}
	return instance
}
