// Package config loads the TOML configuration files accepted by
// cmd/disk and cmd/fsd, overlaying file-supplied values onto
// compiled-in defaults.
package config

import (
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/sisatech/toml"
)

// Disk is disk.toml's shape: image path, listen port, log path and
// seek delay. It has no geometry fields; cmd/disk always derives the
// geometry from the image file's size.
type Disk struct {
	ImagePath string `toml:"image_path"`
	Port      int    `toml:"port"`
	LogPath   string `toml:"log_path"`
	SeekDelay string `toml:"seek_delay"` // loaded but not read by cmd/disk, whose per-cylinder delay is a fixed 1ms
}

// DefaultDisk returns the compiled-in defaults for the disk process.
func DefaultDisk() Disk {
	return Disk{
		ImagePath: "disk.img",
		Port:      9001,
		LogPath:   "disk.log",
		SeekDelay: "0s",
	}
}

// FS is fsd.toml's shape.
type FS struct {
	DiskAddr string `toml:"disk_addr"`
	Port     int    `toml:"port"`
	LogPath  string `toml:"log_path"`
	UID      string `toml:"uid"`
}

// DefaultFS returns the compiled-in defaults for the FS process.
func DefaultFS() FS {
	return FS{
		DiskAddr: "127.0.0.1:9001",
		Port:     9002,
		LogPath:  "fs.log",
		UID:      "user",
	}
}

// LoadDisk reads path (if non-empty) and merges it over DefaultDisk
// with mergo.WithOverride, so every field the file sets wins and every
// field it omits keeps its default. An empty path is not an error —
// callers pass "" when no --config flag was given — but a non-empty
// path naming a file that cannot be read is.
func LoadDisk(path string) (Disk, error) {
	cfg := DefaultDisk()
	if path == "" {
		return cfg, nil
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config: expanding disk config path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config: reading disk config")
	}
	var file Disk
	if err := toml.Unmarshal(data, &file); err != nil {
		return cfg, errors.Wrap(err, "config: parsing disk config")
	}
	if err := mergo.Merge(&cfg, &file, mergo.WithOverride); err != nil {
		return cfg, errors.Wrap(err, "config: merging disk config")
	}
	return cfg, nil
}

// LoadFS reads path (if non-empty) and merges it over DefaultFS the
// same way LoadDisk does.
func LoadFS(path string) (FS, error) {
	cfg := DefaultFS()
	if path == "" {
		return cfg, nil
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config: expanding fs config path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config: reading fs config")
	}
	var file FS
	if err := toml.Unmarshal(data, &file); err != nil {
		return cfg, errors.Wrap(err, "config: parsing fs config")
	}
	if err := mergo.Merge(&cfg, &file, mergo.WithOverride); err != nil {
		return cfg, errors.Wrap(err, "config: merging fs config")
	}
	return cfg, nil
}
