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

package awsclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/rowstream/internal/idgen"
)

// Manager loads the AWS configuration once and hands out S3 clients,
// caching one credentials provider per region and role.
type Manager struct {
	baseCfg     aws.Config
	stsClient   *sts.Client
	sessionName string

	sync.RWMutex
	providers map[roleKey]aws.CredentialsProvider
	tracer    trace.Tracer
}

type managerConfig struct {
	region      string
	sessionName string
}

// ManagerOption configures NewManager.
type ManagerOption func(*managerConfig)

// WithDefaultRegion sets the region used when LoadDefaultConfig finds none.
func WithDefaultRegion(region string) ManagerOption {
	return func(c *managerConfig) {
		c.region = region
	}
}

// WithAssumeRoleSessionName names the STS sessions created for WithRole.
func WithAssumeRoleSessionName(name string) ManagerOption {
	return func(c *managerConfig) {
		c.sessionName = name
	}
}

// NewManager loads the default AWS configuration chain and instruments it.
func NewManager(ctx context.Context, opts ...ManagerOption) (*Manager, error) {
	mc := managerConfig{sessionName: "rowstream-" + idgen.NextBase32ID()}
	for _, o := range opts {
		o(&mc)
	}

	var loadOpts []func(*config.LoadOptions) error
	if mc.region != "" {
		loadOpts = append(loadOpts, config.WithDefaultRegion(mc.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	return &Manager{
		baseCfg:     cfg,
		stsClient:   sts.NewFromConfig(cfg),
		sessionName: mc.sessionName,
		providers:   make(map[roleKey]aws.CredentialsProvider),
		tracer:      otel.Tracer("github.com/cardinalhq/rowstream/internal/awsclient"),
	}, nil
}
