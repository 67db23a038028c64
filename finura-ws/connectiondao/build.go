package connectiondao

import "github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

// Build creates a connections DAO using the standard table name for env.
func Build(api dynamodbiface.DynamoDBAPI, env string) *DAO {
	return New(api, TableName(env))
}

func TableName(env string) string {
	return env + "-finura--ws-connections"
}
