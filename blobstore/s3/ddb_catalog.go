package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/veloxdb/veloxdb/blobstore"
)

// DDBCatalog records which snapshot is current in a DynamoDB table.
//
// S3 has no compare-and-swap, so concurrent publishers are serialized by a
// conditional write on a monotonically increasing version number: a
// publisher that loses the race gets ErrConcurrentModification.
//
// Table schema:
//   - Partition key: base_uri (string), the bucket/prefix being cataloged
//   - Sort key: version (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name veloxdb-snapshots \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCatalog struct {
	client    DDBClient
	tableName string
	baseURI   string
}

// DDBClient is the subset of *dynamodb.Client the catalog uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ErrConcurrentModification is returned when another publisher committed
// the same version first.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// NewDDBCatalog creates a catalog. baseURI (e.g. "s3://bucket/prefix")
// namespaces the entries within the table.
func NewDDBCatalog(client DDBClient, tableName, baseURI string) *DDBCatalog {
	return &DDBCatalog{
		client:    client,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Latest returns the most recently published snapshot name, or an error
// satisfying errors.Is(err, blobstore.ErrNotFound) if none was published.
func (c *DDBCatalog) Latest(ctx context.Context) (string, error) {
	_, name, err := c.latest(ctx)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("%w: no snapshot published under %s", blobstore.ErrNotFound, c.baseURI)
	}
	return name, nil
}

// Publish makes name the current snapshot.
func (c *DDBCatalog) Publish(ctx context.Context, name string) error {
	version, _, err := c.latest(ctx)
	if err != nil {
		return err
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: c.baseURI},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(version+1, 10)},
			"snapshot": &types.AttributeValueMemberS{Value: name},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("commit snapshot version to DynamoDB: %w", err)
	}
	return nil
}

func (c *DDBCatalog) latest(ctx context.Context) (uint64, string, error) {
	resp, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: c.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("query DynamoDB: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid version attribute in DynamoDB")
	}
	nameAttr, ok := item["snapshot"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid snapshot attribute in DynamoDB")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse version: %w", err)
	}
	return version, nameAttr.Value, nil
}
