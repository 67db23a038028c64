package connectiondao

// Connection is an authorized presence connection as recorded in DynamoDB.
// Records expire through the table TTL if the gateway dies without deleting
// them.
type Connection struct {
	ConnectionID string `json:"connection_id"         dynamodbav:"pk"                    ddb:"hash"`
	UserID       string `json:"user_id"               dynamodbav:"user_id"`
	RemoteAddr   string `json:"remote_addr,omitempty" dynamodbav:"remote_addr,omitempty"`
	ConnectedAt  int64  `json:"connected_at"          dynamodbav:"connected_at"`
	TTL          int64  `json:"ttl"                   dynamodbav:"ttl"`
}
