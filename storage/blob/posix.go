// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gorse-io/affinity/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const uploadPattern = ".upload-*"

// POSIX stores models as files below a directory.
type POSIX struct {
	dir string
}

func NewPOSIX(dir string) *POSIX {
	return &POSIX{dir: dir}
}

// Open a file for reading.
func (p *POSIX) Open(name string) (io.ReadCloser, error) {
	fullPath := path.Join(p.dir, name)
	file, err := os.Open(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.NotFoundf("blob %s", name)
	}
	return file, err
}

// Create a new file for writing. The file is written to a temporary name and
// renamed once complete, so readers never observe partial blobs.
func (p *POSIX) Create(name string) (Writer, chan struct{}, error) {
	fullPath := path.Join(p.dir, name)
	if err := os.MkdirAll(path.Dir(fullPath), os.ModePerm); err != nil {
		return nil, nil, err
	}
	file, err := os.CreateTemp(path.Dir(fullPath), uploadPattern)
	if err != nil {
		return nil, nil, err
	}
	w := newPipeWriter(func(r io.Reader) error {
		if _, err := io.Copy(file, r); err != nil {
			_ = file.Close()
			_ = os.Remove(file.Name())
			log.Logger().Error("failed to write to file", zap.String("file", fullPath), zap.Error(err))
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
		return os.Rename(file.Name(), fullPath)
	})
	return w, w.done, nil
}

// List names of all blobs under the directory. Uploads in progress are skipped.
func (p *POSIX) List() ([]string, error) {
	var names []string
	err := filepath.WalkDir(p.dir, func(fullPath string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		name, err := filepath.Rel(p.dir, fullPath)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(name))
		return nil
	})
	return names, err
}

func (p *POSIX) Remove(name string) error {
	err := os.Remove(path.Join(p.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return errors.NotFoundf("blob %s", name)
	}
	return errors.Trace(err)
}
