package finuraddb

import (
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/tj/assert"
)

func TestClusterEndpoint(t *testing.T) {
	cases := map[string]string{
		"cluster.abc.dax-clusters.us-east-2.amazonaws.com":       "cluster.abc.dax-clusters.us-east-2.amazonaws.com:8111",
		"cluster.abc.dax-clusters.us-east-2.amazonaws.com:9111":  "cluster.abc.dax-clusters.us-east-2.amazonaws.com:9111",
		"dax://cluster.abc.dax-clusters.us-east-2.amazonaws.com": "cluster.abc.dax-clusters.us-east-2.amazonaws.com:8111",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, clusterEndpoint(in))
		})
	}
}

func TestNew(t *testing.T) {
	s := session.Must(session.NewSession(aws.NewConfig().
		WithCredentials(credentials.NewStaticCredentials("blah", "blah", "")).
		WithRegion("us-west-2")))

	t.Run("plain dynamodb without a cluster", func(t *testing.T) {
		cfg := Config{}
		assert.False(t, cfg.Cached())

		api, err := New(s, cfg)
		assert.Nil(t, err)
		_, ok := api.(*dynamodb.DynamoDB)
		assert.True(t, ok)
	})

	t.Run("flags", func(t *testing.T) {
		DDBOpts.DAXCluster = "cluster.local"
		DDBOpts.DAXRegion = "us-east-2"
		defer func() {
			DDBOpts.DAXCluster = ""
			DDBOpts.DAXRegion = ""
		}()

		cfg := ConfigFromFlags()
		assert.True(t, cfg.Cached())
		assert.Equal(t, "us-east-2", cfg.DAXRegion)
	})

	t.Run("cached client satisfies the dynamodb api", func(t *testing.T) {
		var api dynamodbiface.DynamoDBAPI = cachedClient{}
		_, err := api.GetResourcePolicy(&dynamodb.GetResourcePolicyInput{})
		assert.Equal(t, errUnsupported, err)
	})
}
