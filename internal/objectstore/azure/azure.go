/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package azure is an objectstore.Driver over Azure Blob Storage. No azure
// driver exists anywhere in the teacher; this is new code grounded on the
// *shape* of storage/persistence-s3.go (lazy client, key() helper, prefix
// handling) rather than on any specific teacher file.
package azure

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"os"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/launix-de/restructure/internal/objectstore"
)

func init() {
	objectstore.Register("azure", func(raw json.RawMessage) (objectstore.Driver, error) {
		var cfg Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return New(cfg), nil
	})
}

// Config is the azure-side counterpart of the s3 driver's Config: a
// connection string plus a container/prefix pair.
type Config struct {
	ConnectionString string `json:"connectionString"`
	ServiceURL       string `json:"serviceUrl"`
	Container        string `json:"container"`
	Prefix           string `json:"prefix"`
}

type Driver struct {
	cfg Config

	mu     sync.Mutex
	client *azblob.Client
	opened bool
}

func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

func (d *Driver) ensureOpen() *azblob.Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return d.client
	}

	var client *azblob.Client
	var err error
	if d.cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(d.cfg.ConnectionString, nil)
	} else {
		client, err = azblob.NewClientWithNoCredential(d.cfg.ServiceURL, nil)
	}
	if err != nil {
		panic("objectstore/azure: failed to create client: " + err.Error())
	}

	d.client = client
	d.opened = true
	return d.client
}

func (d *Driver) key(path string) string {
	pfx := strings.TrimSuffix(d.cfg.Prefix, "/")
	if pfx == "" {
		return path
	}
	return pfx + "/" + path
}

func (d *Driver) List(path string) iter.Seq[objectstore.Entry] {
	return func(yield func(objectstore.Entry) bool) {
		client := d.ensureOpen()
		prefix := d.key(path)
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}

		pager := client.NewListBlobsFlatPager(d.cfg.Container, &container.ListBlobsFlatOptions{
			Prefix: &prefix,
		})
		base := d.key("")
		for pager.More() {
			page, err := pager.NextPage(context.Background())
			if err != nil {
				return
			}
			for _, blob := range page.Segment.BlobItems {
				if blob.Name == nil {
					continue
				}
				rel := strings.TrimPrefix(*blob.Name, base+"/")
				size := int64(0)
				if blob.Properties != nil && blob.Properties.ContentLength != nil {
					size = *blob.Properties.ContentLength
				}
				if !yield(objectstore.Entry{Path: rel, IsDir: false, Size: size}) {
					return
				}
			}
		}
	}
}

func (d *Driver) NewReader(path string) (io.ReadCloser, error) {
	client := d.ensureOpen()
	resp, err := client.DownloadStream(context.Background(), d.cfg.Container, d.key(path), nil)
	if isNotFound(err) {
		return nil, objectstore.ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (d *Driver) Stat(path string) (int64, error) {
	client := d.ensureOpen()
	blobClient := client.ServiceClient().NewContainerClient(d.cfg.Container).NewBlobClient(d.key(path))
	props, err := blobClient.GetProperties(context.Background(), nil)
	if isNotFound(err) {
		return 0, objectstore.ErrNotExist
	}
	if err != nil {
		return 0, err
	}
	if props.ContentLength == nil {
		return 0, nil
	}
	return *props.ContentLength, nil
}

// Store uploads the local file to remote. Azure blob writes are atomic
// from a reader's perspective (no partial blob is ever visible).
func (d *Driver) Store(local, remote string) error {
	client := d.ensureOpen()
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = client.UploadFile(context.Background(), d.cfg.Container, d.key(remote), f, nil)
	if err != nil {
		return err
	}
	return os.Remove(local)
}

func (d *Driver) Move(src, dst string) error {
	client := d.ensureOpen()
	srcClient := client.ServiceClient().NewContainerClient(d.cfg.Container).NewBlobClient(d.key(src))
	dstClient := client.ServiceClient().NewContainerClient(d.cfg.Container).NewBlobClient(d.key(dst))

	_, err := dstClient.StartCopyFromURL(context.Background(), srcClient.URL(), nil)
	if err != nil {
		return err
	}
	return d.Delete(src)
}

func (d *Driver) Delete(path string) error {
	client := d.ensureOpen()
	_, err := client.DeleteBlob(context.Background(), d.cfg.Container, d.key(path), nil)
	return err
}

// MkdirAll is a no-op: blob containers have no real directories.
func (d *Driver) MkdirAll(path string) error {
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == 404
	}
	return false
}
