package preflight

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	pkgconfig "github.com/KeightAI/infra-ai-forge/pkg/config"
)

// Identity is the AWS principal the deploy tool will act as.
type Identity struct {
	Account string
	ARN     string
	Region  string
}

type identityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// LoadAWSConfig builds an SDK config from the worker credentials. Static keys
// win when both are set; otherwise the default provider chain applies.
func LoadAWSConfig(ctx context.Context, creds pkgconfig.AWSCredentials) (aws.Config, error) {
	region := strings.TrimSpace(creds.Region)
	if region == "" {
		region = pkgconfig.DefaultAWSRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// CheckAWS verifies the credentials forwarded to deploy commands resolve to
// a principal.
func CheckAWS(ctx context.Context, creds pkgconfig.AWSCredentials) (Identity, error) {
	cfg, err := LoadAWSConfig(ctx, creds)
	if err != nil {
		return Identity{}, err
	}
	return callerIdentity(ctx, sts.NewFromConfig(cfg), cfg.Region)
}

func callerIdentity(ctx context.Context, api identityAPI, region string) (Identity, error) {
	out, err := api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("get caller identity: %w", err)
	}
	return Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		Region:  region,
	}, nil
}
