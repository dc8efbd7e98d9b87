package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

const endpointParam = "/order-bot"

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Endpoint is the ordering service location stored under <prefix>/order-bot.
type Endpoint struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

// Client reads order bot endpoint settings from SSM Parameter Store.
type Client struct {
	api ssmAPI
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// Endpoint loads and decodes <prefix>/order-bot. Either field may be empty; the
// caller keeps its own value for those.
func (c *Client) Endpoint(ctx context.Context, prefix string) (Endpoint, error) {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return Endpoint{}, errors.New("paramstore: prefix is required")
	}
	raw, err := c.get(ctx, prefix+endpointParam)
	if err != nil {
		return Endpoint{}, err
	}
	var ep Endpoint
	if err := json.Unmarshal([]byte(raw), &ep); err != nil {
		return Endpoint{}, fmt.Errorf("paramstore: decode %s: %w", prefix+endpointParam, err)
	}
	ep.BaseURL = strings.TrimSpace(ep.BaseURL)
	ep.Token = strings.TrimSpace(ep.Token)
	return ep, nil
}

func (c *Client) get(ctx context.Context, name string) (string, error) {
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}
