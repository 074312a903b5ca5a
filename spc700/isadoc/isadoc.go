// Package isadoc locates and loads the Anomie-style SPC700 opcode
// reference table that spc700.ParseISA consumes. The core package stays
// free of any I/O; this package is the one place that touches disk or
// network on the table's behalf.
package isadoc

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultURL is the reference table fetched when no local path is given
// and nothing is cached yet.
const DefaultURL = "https://raw.githubusercontent.com/Anomie/S-SMP/master/spc700.txt"

// DefaultCacheName is the file name used inside a cache directory.
const DefaultCacheName = "spc700.txt"

// Load returns the raw opcode table text. Resolution order:
//
//  1. path, if non-empty, is read directly.
//  2. otherwise, if cacheDir is non-empty and it already holds
//     DefaultCacheName, that cached copy is used.
//  3. otherwise url (or DefaultURL if empty) is fetched over HTTP and,
//     if cacheDir is non-empty, written there for next time.
func Load(path, url, cacheDir string) ([]byte, error) {
	if path != "" {
		log.WithField("path", path).Debug("isadoc: loading opcode table from local path")
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("isadoc: reading %s: %w", path, err)
		}
		return data, nil
	}

	if url == "" {
		url = DefaultURL
	}

	var cachePath string
	if cacheDir != "" {
		cachePath = filepath.Join(cacheDir, DefaultCacheName)
		if data, err := ioutil.ReadFile(cachePath); err == nil {
			log.WithField("path", cachePath).Debug("isadoc: cache hit")
			return data, nil
		}
	}

	log.WithField("url", url).Info("isadoc: fetching opcode table")
	data, err := download(url)
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			log.WithError(err).Warn("isadoc: could not create cache directory")
		} else if err := ioutil.WriteFile(cachePath, data, 0o644); err != nil {
			log.WithError(err).Warn("isadoc: could not write cache file")
		} else {
			log.WithField("path", cachePath).Debug("isadoc: wrote cache file")
		}
	}

	return data, nil
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

func download(url string) ([]byte, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("isadoc: fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("isadoc: fetching %s: HTTP %d", url, resp.StatusCode)
	}

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("isadoc: reading response from %s: %w", url, err)
	}
	return data, nil
}
