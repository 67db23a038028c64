// Package finuraddb builds the DynamoDB client the finura services share. When
// a DAX cluster is configured, reads such as connection lookups are served
// from the cluster's item cache and writes go through it to the table.
package finuraddb

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-dax-go/dax"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

const daxPort = "8111"

type Config struct {
	DAXCluster     string
	DAXRegion      string
	RequestTimeout time.Duration // DAX only; zero keeps the library default
}

// ConfigFromFlags returns the Config set by DDBFlags.
func ConfigFromFlags() Config {
	return Config{
		DAXCluster: DDBOpts.DAXCluster,
		DAXRegion:  DDBOpts.DAXRegion,
	}
}

// Cached reports whether clients built from c read through DAX.
func (c Config) Cached() bool {
	return c.DAXCluster != ""
}

// clusterEndpoint returns the host:port of the cluster discovery endpoint,
// accepting the dax:// form the console shows.
func clusterEndpoint(cluster string) string {
	endpoint := strings.TrimPrefix(cluster, "dax://")
	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		endpoint = net.JoinHostPort(endpoint, daxPort)
	}
	return endpoint
}

// New returns a DynamoDB client for s, backed by DAX when cfg names a cluster.
func New(s *session.Session, cfg Config) (dynamodbiface.DynamoDBAPI, error) {
	if !cfg.Cached() {
		return dynamodb.New(s), nil
	}

	config := dax.DefaultConfig()
	config.HostPorts = []string{clusterEndpoint(cfg.DAXCluster)}
	config.Region = cfg.DAXRegion
	if config.Region == "" {
		config.Region = aws.StringValue(s.Config.Region)
	}
	if cfg.RequestTimeout > 0 {
		config.RequestTimeout = cfg.RequestTimeout
	}

	client, err := dax.New(config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to dax cluster %v: %w", cfg.DAXCluster, err)
	}
	return cachedClient{Dax: client}, nil
}

// cachedClient is a DAX client usable as dynamodbiface.DynamoDBAPI. DAX has
// no resource policy operations, so those report unimplemented.
type cachedClient struct {
	*dax.Dax
}

var errUnsupported = fmt.Errorf("unimplemented: not supported by dax")

func (cachedClient) DeleteResourcePolicy(*dynamodb.DeleteResourcePolicyInput) (*dynamodb.DeleteResourcePolicyOutput, error) {
	return nil, errUnsupported
}
func (cachedClient) DeleteResourcePolicyWithContext(aws.Context, *dynamodb.DeleteResourcePolicyInput, ...request.Option) (*dynamodb.DeleteResourcePolicyOutput, error) {
	return nil, errUnsupported
}
func (cachedClient) DeleteResourcePolicyRequest(*dynamodb.DeleteResourcePolicyInput) (*request.Request, *dynamodb.DeleteResourcePolicyOutput) {
	return nil, nil
}
func (cachedClient) GetResourcePolicy(*dynamodb.GetResourcePolicyInput) (*dynamodb.GetResourcePolicyOutput, error) {
	return nil, errUnsupported
}
func (cachedClient) GetResourcePolicyWithContext(aws.Context, *dynamodb.GetResourcePolicyInput, ...request.Option) (*dynamodb.GetResourcePolicyOutput, error) {
	return nil, errUnsupported
}
func (cachedClient) GetResourcePolicyRequest(*dynamodb.GetResourcePolicyInput) (*request.Request, *dynamodb.GetResourcePolicyOutput) {
	return nil, nil
}
func (cachedClient) PutResourcePolicy(*dynamodb.PutResourcePolicyInput) (*dynamodb.PutResourcePolicyOutput, error) {
	return nil, errUnsupported
}
func (cachedClient) PutResourcePolicyWithContext(aws.Context, *dynamodb.PutResourcePolicyInput, ...request.Option) (*dynamodb.PutResourcePolicyOutput, error) {
	return nil, errUnsupported
}
func (cachedClient) PutResourcePolicyRequest(*dynamodb.PutResourcePolicyInput) (*request.Request, *dynamodb.PutResourcePolicyOutput) {
	return nil, nil
}
