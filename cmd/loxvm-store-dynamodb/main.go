// Command loxvm-store-dynamodb is the remote chunk-store backend:
// a subprocess that speaks the line-delimited JSON protocol
// loxvm/internal/store.RemoteClient drives, backing Save/Load/List
// with a single DynamoDB table instead of the local sqlite cache.
//
// Adapted from the teacher's generic DynamoDB plugin
// (cmd/noxy-plugin-dynamodb/main.go in estevaofon-noxy, which exposed
// put_item/get_item/scan/query/update_item/delete_item over the same
// kind of stdin/stdout loop) — narrowed to the three operations a
// chunk cache actually needs, with the table's single item shape
// (name, file_name, source, payload, saved_at) fixed rather than
// caller-supplied.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type request struct {
	Method   string          `json:"method"`
	Name     string          `json:"name,omitempty"`
	FileName string          `json:"file_name,omitempty"`
	Source   string          `json:"source,omitempty"`
	Chunk    json.RawMessage `json:"chunk,omitempty"`
}

type remoteEntry struct {
	Name     string `json:"name"`
	FileName string `json:"file_name"`
	SavedAt  int64  `json:"saved_at"`
}

type response struct {
	Source  string          `json:"source,omitempty"`
	Chunk   json.RawMessage `json:"chunk,omitempty"`
	Found   bool            `json:"found,omitempty"`
	Entries []remoteEntry   `json:"entries,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type item struct {
	Name     string `dynamodbav:"name"`
	FileName string `dynamodbav:"file_name"`
	Source   string `dynamodbav:"source"`
	Payload  []byte `dynamodbav:"payload"`
	SavedAt  int64  `dynamodbav:"saved_at"`
}

func main() {
	table := os.Getenv("LOXVM_DYNAMODB_TABLE")
	if table == "" {
		table = "loxvm-chunks"
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		fmt.Fprintf(os.Stderr, "loxvm-store-dynamodb: load AWS config: %v\n", err)
		os.Exit(1)
	}
	client := dynamodb.NewFromConfig(cfg)

	scanner := bufio.NewScanner(os.Stdin)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			encoder.Encode(response{Error: fmt.Sprintf("parse error: %v", err)})
			continue
		}
		resp := handle(context.Background(), client, table, req)
		if err := encoder.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "loxvm-store-dynamodb: encode response: %v\n", err)
		}
	}
}

func handle(ctx context.Context, client *dynamodb.Client, table string, req request) response {
	switch req.Method {
	case "Save":
		return handleSave(ctx, client, table, req)
	case "Load":
		return handleLoad(ctx, client, table, req)
	case "List":
		return handleList(ctx, client, table)
	default:
		return response{Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}
}

func handleSave(ctx context.Context, client *dynamodb.Client, table string, req request) response {
	if req.Name == "" {
		return response{Error: "Save requires a name"}
	}
	av, err := attributevalue.MarshalMap(item{
		Name:     req.Name,
		FileName: req.FileName,
		Source:   req.Source,
		Payload:  req.Chunk,
		SavedAt:  time.Now().Unix(),
	})
	if err != nil {
		return response{Error: fmt.Sprintf("marshal item: %v", err)}
	}
	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	if err != nil {
		return response{Error: err.Error()}
	}
	return response{}
}

func handleLoad(ctx context.Context, client *dynamodb.Client, table string, req request) response {
	if req.Name == "" {
		return response{Error: "Load requires a name"}
	}
	out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: req.Name},
		},
	})
	if err != nil {
		return response{Error: err.Error()}
	}
	if out.Item == nil {
		return response{Found: false}
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return response{Error: fmt.Sprintf("unmarshal item: %v", err)}
	}
	return response{Found: true, Source: it.Source, Chunk: json.RawMessage(it.Payload)}
}

func handleList(ctx context.Context, client *dynamodb.Client, table string) response {
	out, err := client.Scan(ctx, &dynamodb.ScanInput{
		TableName:            aws.String(table),
		ProjectionExpression: aws.String("#n, file_name, saved_at"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
	})
	if err != nil {
		return response{Error: err.Error()}
	}
	var items []item
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return response{Error: fmt.Sprintf("unmarshal items: %v", err)}
	}
	entries := make([]remoteEntry, len(items))
	for i, it := range items {
		entries[i] = remoteEntry{Name: it.Name, FileName: it.FileName, SavedAt: it.SavedAt}
	}
	return response{Entries: entries}
}
