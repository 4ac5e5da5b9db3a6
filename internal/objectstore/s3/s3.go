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

// Package s3 is an objectstore.Driver over aws-sdk-go-v2, adapted from the
// teacher's storage/persistence-s3.go: the same lazy ensureOpen client,
// the same credential/endpoint/path-style factory options.
package s3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/launix-de/restructure/internal/objectstore"
)

func init() {
	objectstore.Register("s3", func(raw json.RawMessage) (objectstore.Driver, error) {
		var cfg Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return New(cfg), nil
	})
}

// Config mirrors the teacher's S3Factory fields.
type Config struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	ForcePathStyle  bool   `json:"forcePathStyle"`
}

type Driver struct {
	cfg Config

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

func (d *Driver) ensureOpen() *s3.Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return d.client
	}

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if d.cfg.Region != "" {
		opts = append(opts, config.WithRegion(d.cfg.Region))
	}
	if d.cfg.AccessKeyID != "" && d.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(d.cfg.AccessKeyID, d.cfg.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		panic(fmt.Sprintf("objectstore/s3: failed to load AWS config: %v", err))
	}

	var s3Opts []func(*s3.Options)
	if d.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(d.cfg.Endpoint) })
	}
	if d.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	d.client = s3.NewFromConfig(cfg, s3Opts...)
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

		paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
			Bucket: aws.String(d.cfg.Bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(context.Background())
			if err != nil {
				return
			}
			for _, obj := range page.Contents {
				rel := strings.TrimPrefix(aws.ToString(obj.Key), d.key("")+"/")
				size := int64(0)
				if obj.Size != nil {
					size = *obj.Size
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
	resp, err := client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(d.key(path)),
	})
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
	resp, err := client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(d.key(path)),
	})
	if isNotFound(err) {
		return 0, objectstore.ErrNotExist
	}
	if err != nil {
		return 0, err
	}
	if resp.ContentLength == nil {
		return 0, nil
	}
	return *resp.ContentLength, nil
}

// Store uploads the local file to remote. S3 has no rename; every publish
// is a PutObject, which is already atomic from a reader's perspective (no
// partial object is ever visible).
func (d *Driver) Store(local, remote string) error {
	client := d.ensureOpen()
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(d.key(remote)),
		Body:   f,
	})
	if err != nil {
		return err
	}
	return os.Remove(local)
}

func (d *Driver) Move(src, dst string) error {
	client := d.ensureOpen()
	_, err := client.CopyObject(context.Background(), &s3.CopyObjectInput{
		Bucket:     aws.String(d.cfg.Bucket),
		CopySource: aws.String(d.cfg.Bucket + "/" + d.key(src)),
		Key:        aws.String(d.key(dst)),
	})
	if err != nil {
		return err
	}
	return d.Delete(src)
}

func (d *Driver) Delete(path string) error {
	client := d.ensureOpen()
	_, err := client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(d.key(path)),
	})
	return err
}

// MkdirAll is a no-op: S3 has no real directories, only key prefixes.
func (d *Driver) MkdirAll(path string) error {
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nf *types.NoSuchKey
	var nfb *types.NotFound
	return errors.As(err, &nf) || errors.As(err, &nfb)
}
