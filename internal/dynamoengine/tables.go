package dynamoengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TableWait bounds how long EnsureTables waits for a created table to become active.
var TableWait = 2 * time.Minute

// EnsureTables creates the prefixed entity tables, keyed by a numeric "id",
// and the sequence table. Tables that already exist are left untouched.
func (c *Conn) EnsureTables(ctx context.Context, tables ...string) error {
	var created []string
	for _, table := range tables {
		name := c.dialect.prefix + table
		ok, err := c.createTable(ctx, name, "id", types.ScalarAttributeTypeN)
		if err != nil {
			return err
		}
		if ok {
			created = append(created, name)
		}
	}
	ok, err := c.createTable(ctx, c.sequenceTable, "name", types.ScalarAttributeTypeS)
	if err != nil {
		return err
	}
	if ok {
		created = append(created, c.sequenceTable)
	}

	waiter := dynamodb.NewTableExistsWaiter(c.api)
	for _, name := range created {
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(name),
		}, TableWait); err != nil {
			return fmt.Errorf("wait for table %s: %w", name, err)
		}
	}
	return nil
}

func (c *Conn) createTable(ctx context.Context, name, key string, keyType types.ScalarAttributeType) (bool, error) {
	_, err := c.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(key), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(key), AttributeType: keyType},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return false, nil
		}
		return false, fmt.Errorf("create table %s: %w", name, err)
	}
	c.logger.Info("created table", "table", name)
	return true, nil
}

// DropTables deletes the prefixed entity tables and the sequence table,
// returning every failure joined.
func (c *Conn) DropTables(ctx context.Context, tables ...string) error {
	names := make([]string, 0, len(tables)+1)
	for _, table := range tables {
		names = append(names, c.dialect.prefix+table)
	}
	names = append(names, c.sequenceTable)

	var errs []error
	for _, name := range names {
		if _, err := c.api.DeleteTable(ctx, &dynamodb.DeleteTableInput{
			TableName: aws.String(name),
		}); err != nil {
			errs = append(errs, fmt.Errorf("delete table %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
