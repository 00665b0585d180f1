package dynamoengine

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/roster/store"
)

// classify maps DynamoDB condition failures onto the store taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if reason.Code == nil {
				continue
			}
			switch *reason.Code {
			case "ConditionalCheckFailed":
				return fmt.Errorf("%w: %w", store.ErrRecordNotFound, err)
			case "DuplicateItem":
				return fmt.Errorf("%w: %w", store.ErrConstraint, err)
			}
		}
		return err
	}

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("%w: %w", store.ErrRecordNotFound, err)
	}
	var dupErr *types.DuplicateItemException
	if errors.As(err, &dupErr) {
		return fmt.Errorf("%w: %w", store.ErrConstraint, err)
	}
	return err
}
