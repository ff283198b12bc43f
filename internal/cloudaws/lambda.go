package cloudaws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// ExecuteLambdaFunction synchronously invokes a lambda function with payload
func ExecuteLambdaFunction(ctx context.Context, functionName, region string, payload []byte) (*lambda.InvokeOutput, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}

	lambdaClient := lambda.NewFromConfig(cfg)
	output, err := lambdaClient.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(functionName),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return output, fmt.Errorf("failed to execute lambda function: %w", err)
	}
	if output.FunctionError != nil {
		return output, fmt.Errorf("lambda function %v returned error %v: %s", functionName, aws.ToString(output.FunctionError), output.Payload)
	}
	return output, nil
}
