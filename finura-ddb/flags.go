package finuraddb

import (
	finuracli "github.com/finura-app/finura-go-presence/finura-cli"
	"github.com/urfave/cli/v2"
)

var DDBOpts struct {
	DAXCluster string
	DAXRegion  string
	TableName  string
}

var DAXClusterFlag = finuracli.StringFlag("dax-cluster", "The DAX cluster to connect to", &DDBOpts.DAXCluster)
var DAXRegionFlag = finuracli.StringFlag("dax-region", "The region of the DAX cluster", &DDBOpts.DAXRegion, "us-east-2")
var TableNameFlag = finuracli.StringFlag("connections-table", "The DynamoDB table live connections are logged to; defaults to <env>-finura--ws-connections", &DDBOpts.TableName)

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	DAXRegionFlag,
	TableNameFlag,
}
