package database

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TableSpec describes a table by its hash key and optional single-key GSIs.
type TableSpec struct {
	Name    string
	Key     string
	KeyType types.ScalarAttributeType
	Indexes []IndexSpec
}

type IndexSpec struct {
	Name    string
	Key     string
	KeyType types.ScalarAttributeType
}

// ListTables returns all table names in the account/endpoint.
func (c *DynamoDBClient) ListTables(ctx context.Context) ([]string, error) {
	var last *string
	var names []string

	for {
		out, err := c.svc.ListTables(ctx, &dynamodb.ListTablesInput{
			ExclusiveStartTableName: last,
			Limit:                   aws.Int32(100),
		})
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}

		names = append(names, out.TableNames...)
		if out.LastEvaluatedTableName == nil {
			break
		}
		last = out.LastEvaluatedTableName
	}

	return names, nil
}

// EnsureTables creates every missing table and waits for it to become active.
// It returns the names that were created.
func (c *DynamoDBClient) EnsureTables(ctx context.Context, specs []TableSpec) ([]string, error) {
	existing, err := c.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		have[name] = struct{}{}
	}

	created := make([]string, 0)
	for _, spec := range specs {
		if _, ok := have[spec.Name]; ok {
			continue
		}
		if err := c.createTable(ctx, spec); err != nil {
			return created, err
		}
		created = append(created, spec.Name)
	}

	waiter := dynamodb.NewTableExistsWaiter(c.svc)
	for _, name := range created {
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, 2*time.Minute); err != nil {
			return created, fmt.Errorf("wait for table %s: %w", name, err)
		}
	}
	return created, nil
}

func (c *DynamoDBClient) createTable(ctx context.Context, spec TableSpec) error {
	attrs := map[string]types.ScalarAttributeType{spec.Key: spec.KeyType}
	input := &dynamodb.CreateTableInput{
		TableName:   aws.String(spec.Name),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(spec.Key), KeyType: types.KeyTypeHash},
		},
	}

	for _, idx := range spec.Indexes {
		attrs[idx.Key] = idx.KeyType
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName: aws.String(idx.Name),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(idx.Key), KeyType: types.KeyTypeHash},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}

	for name, typ := range attrs {
		input.AttributeDefinitions = append(input.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: typ,
		})
	}

	if _, err := c.svc.CreateTable(ctx, input); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}
