package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/partsplit-prereg/internal/config"
)

// LoadAWSConfig centralizes AWS SDK initialization so the API and tools share the
// same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		awsCfg.EndpointResolverWithOptions = endpointOverride(endpoint, cfg.AWSRegion)
	}

	return awsCfg, nil
}

func endpointOverride(endpoint, region string) aws.EndpointResolverWithOptions {
	return aws.EndpointResolverWithOptionsFunc(
		func(service, _ string, _ ...interface{}) (aws.Endpoint, error) {
			switch service {
			case sqs.ServiceID, dynamodb.ServiceID, s3.ServiceID, sesv2.ServiceID:
				return aws.Endpoint{
					URL:               endpoint,
					PartitionID:       "aws",
					SigningRegion:     region,
					HostnameImmutable: service == s3.ServiceID,
				}, nil
			default:
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}
		},
	)
}

// S3Options forces path-style addressing when talking to LocalStack.
func S3Options(cfg *appconfig.Config) func(*s3.Options) {
	return func(o *s3.Options) {
		if cfg.AWSEndpointOverride != "" {
			o.UsePathStyle = true
		}
	}
}
