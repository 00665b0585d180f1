package dynamoengine

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// ClientOptions selects the AWS account and endpoint for Open.
type ClientOptions struct {
	// Region overrides the region resolved from the environment.
	Region string

	// Endpoint points the client at DynamoDB Local or another compatible service.
	Endpoint string

	// Profile selects a shared config profile.
	Profile string
}

// Open loads the default AWS configuration and returns a Conn over a new client.
func Open(ctx context.Context, client ClientOptions, opts Options) (*Conn, error) {
	var loadOpts []func(*config.LoadOptions) error
	if client.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(client.Region))
	}
	if client.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(client.Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	api := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if client.Endpoint != "" {
			o.BaseEndpoint = aws.String(client.Endpoint)
		}
	})
	return New(api, opts), nil
}
