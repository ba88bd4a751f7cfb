// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cloudstorage

import (
	"context"
	"fmt"
	"sync"

	"github.com/cardinalhq/rowstream/internal/awsclient"
	"github.com/cardinalhq/rowstream/internal/azureclient"
	"github.com/cardinalhq/rowstream/internal/gcpclient"
)

// Config selects and configures the storage backends.
type Config struct {
	S3Region      string
	S3Endpoint    string
	S3PathStyle   bool
	S3InsecureTLS bool
	S3Role        string
	// S3SessionName names the STS sessions opened for S3Role.
	S3SessionName string

	GCSEndpoint       string
	GCSServiceAccount string

	AzureAccount  string
	AzureEndpoint string

	// FileBase roots bucket/key lookups for file URIs.
	FileBase string
}

// Openers builds the Opener for each scheme on first use, so a run that
// only reads local files never loads cloud credentials.
type Openers struct {
	cfg Config

	mu      sync.Mutex
	openers map[Scheme]Opener
	gcp     *gcpclient.Manager
}

// NewOpeners returns an empty registry for cfg.
func NewOpeners(cfg Config) *Openers {
	return &Openers{cfg: cfg, openers: make(map[Scheme]Opener)}
}

// Register installs a fixed opener for scheme, replacing any default.
func (o *Openers) Register(scheme Scheme, opener Opener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openers[scheme] = opener
}

// ForScheme returns the opener for scheme, creating its client if needed.
func (o *Openers) ForScheme(ctx context.Context, scheme Scheme) (Opener, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if op, ok := o.openers[scheme]; ok {
		return op, nil
	}
	op, err := o.build(ctx, scheme)
	if err != nil {
		return nil, err
	}
	o.openers[scheme] = op
	return op, nil
}

// Open resolves uri and opens it with the matching backend.
func (o *Openers) Open(ctx context.Context, uri string) (Location, Opener, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return Location{}, nil, err
	}
	op, err := o.ForScheme(ctx, loc.Scheme)
	if err != nil {
		return Location{}, nil, err
	}
	return loc, op, nil
}

// Close releases cached cloud clients.
func (o *Openers) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gcp != nil {
		return o.gcp.Close()
	}
	return nil
}

func (o *Openers) build(ctx context.Context, scheme Scheme) (Opener, error) {
	switch scheme {
	case SchemeFile:
		return NewFileOpener(o.cfg.FileBase), nil

	case SchemeS3:
		mgrOpts := []awsclient.ManagerOption{awsclient.WithDefaultRegion(o.cfg.S3Region)}
		if o.cfg.S3SessionName != "" {
			mgrOpts = append(mgrOpts, awsclient.WithAssumeRoleSessionName(o.cfg.S3SessionName))
		}
		mgr, err := awsclient.NewManager(ctx, mgrOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS manager: %w", err)
		}
		opts := []awsclient.S3Option{awsclient.WithRegion(o.cfg.S3Region), awsclient.WithRole(o.cfg.S3Role)}
		if o.cfg.S3Endpoint != "" {
			opts = append(opts, awsclient.WithEndpoint(o.cfg.S3Endpoint))
		}
		if o.cfg.S3PathStyle {
			opts = append(opts, awsclient.WithPathStyle())
		}
		if o.cfg.S3InsecureTLS {
			opts = append(opts, awsclient.WithInsecureTLS())
		}
		client, err := mgr.GetS3(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return NewS3Opener(client), nil

	case SchemeGCS:
		if o.gcp == nil {
			o.gcp = gcpclient.NewManager()
		}
		var opts []gcpclient.StorageOption
		if o.cfg.GCSEndpoint != "" {
			opts = append(opts, gcpclient.WithEndpoint(o.cfg.GCSEndpoint))
		}
		if o.cfg.GCSServiceAccount != "" {
			opts = append(opts, gcpclient.WithImpersonateServiceAccount(o.cfg.GCSServiceAccount))
		}
		client, err := o.gcp.GetStorage(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		return NewGCSOpener(client), nil

	case SchemeAzure:
		mgr, err := azureclient.NewManager(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure manager: %w", err)
		}
		var opts []azureclient.BlobOption
		if o.cfg.AzureAccount != "" {
			opts = append(opts, azureclient.WithBlobStorageAccount(o.cfg.AzureAccount))
		}
		if o.cfg.AzureEndpoint != "" {
			opts = append(opts, azureclient.WithBlobEndpoint(o.cfg.AzureEndpoint))
		}
		client, err := mgr.GetBlob(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
		return NewAzureOpener(client), nil

	default:
		return nil, fmt.Errorf("unsupported storage scheme: %s", scheme)
	}
}
