package mcpserver

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"
)

// JobStatus represents the state of a persona program generation job.
type JobStatus string

const (
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusIngesting  JobStatus = "ingesting"
	JobStatusGenerating JobStatus = "generating"
	JobStatusGoverning  JobStatus = "governing"
	JobStatusUploading  JobStatus = "uploading"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
)

// ProgramItem is the DynamoDB record for a persona program.
type ProgramItem struct {
	PK              string `dynamodbav:"PK"`
	SK              string `dynamodbav:"SK"`
	GSI1PK          string `dynamodbav:"GSI1PK"`
	GSI1SK          string `dynamodbav:"GSI1SK"`
	ProgramID       string `dynamodbav:"programId"`
	Brand           string `dynamodbav:"brand"`
	BriefTitle      string `dynamodbav:"briefTitle,omitempty"`
	BriefSource     string `dynamodbav:"briefSource,omitempty"`
	Category        string `dynamodbav:"category,omitempty"`
	Owner           string `dynamodbav:"owner"`
	ProgramKey      string `dynamodbav:"programKey,omitempty"`
	ProgramURL      string `dynamodbav:"programUrl,omitempty"`
	Status          string `dynamodbav:"status"`
	ProgressPercent float64 `dynamodbav:"progressPercent,omitempty"`
	StageMessage    string `dynamodbav:"stageMessage,omitempty"`
	ErrorMessage    string `dynamodbav:"errorMessage,omitempty"`
	Model           string `dynamodbav:"model,omitempty"`
	PersonaCount    int    `dynamodbav:"personaCount,omitempty"`
	InsightCount    int    `dynamodbav:"insightCount,omitempty"`
	ViewCount       int    `dynamodbav:"viewCount,omitempty"`
	CreatedAt       string `dynamodbav:"createdAt"`

	// Usage tracking fields (set after pipeline completion)
	UserID           string  `dynamodbav:"userId,omitempty"`
	InputCharCount   int     `dynamodbav:"inputCharCount,omitempty"`
	EstimatedCostUSD float64 `dynamodbav:"estimatedCostUSD,omitempty"`
}

// Store handles DynamoDB operations for program jobs.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// NewStore creates a DynamoDB store.
func NewStore(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// NewProgramID generates a ULID for a new program.
func NewProgramID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}

// CreateJob inserts a new program job with status=submitted.
func (s *Store) CreateJob(ctx context.Context, id, owner, brand, briefSource, category, model string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	item := ProgramItem{
		PK:          "PROGRAM#" + id,
		SK:          "METADATA",
		GSI1PK:      "PROGRAMS",
		GSI1SK:      now + "#" + id,
		ProgramID:   id,
		Owner:       owner,
		Brand:       brand,
		BriefSource: briefSource,
		Category:    category,
		Status:      string(JobStatusSubmitted),
		Model:       model,
		CreatedAt:   now,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal job item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("put job item: %w", err)
	}
	return nil
}

// UpdateProgress updates the job's status, progress percent, and stage message.
func (s *Store) UpdateProgress(ctx context.Context, id string, status JobStatus, percent float64, message string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "PROGRAM#" + id},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
		UpdateExpression: aws.String("SET #status = :status, progressPercent = :pct, stageMessage = :msg"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":pct":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%.2f", percent)},
			":msg":    &types.AttributeValueMemberS{Value: message},
		},
	})
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// CompleteJob marks the job as complete with final metadata.
func (s *Store) CompleteJob(ctx context.Context, id, briefTitle, category, programKey, programURL string, personaCount, insightCount int) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "PROGRAM#" + id},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
		UpdateExpression: aws.String("SET #status = :status, progressPercent = :pct, stageMessage = :msg, briefTitle = :title, category = :cat, programKey = :pkey, programUrl = :purl, personaCount = :pc, insightCount = :ic"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(JobStatusComplete)},
			":pct":    &types.AttributeValueMemberN{Value: "1.00"},
			":msg":    &types.AttributeValueMemberS{Value: "Complete"},
			":title":  &types.AttributeValueMemberS{Value: briefTitle},
			":cat":    &types.AttributeValueMemberS{Value: category},
			":pkey":   &types.AttributeValueMemberS{Value: programKey},
			":purl":   &types.AttributeValueMemberS{Value: programURL},
			":pc":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", personaCount)},
			":ic":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", insightCount)},
		},
	})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// FailJob marks the job as failed with an error message.
func (s *Store) FailJob(ctx context.Context, id, errMsg string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "PROGRAM#" + id},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
		UpdateExpression: aws.String("SET #status = :status, errorMessage = :err, stageMessage = :msg"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(JobStatusFailed)},
			":err":    &types.AttributeValueMemberS{Value: errMsg},
			":msg":    &types.AttributeValueMemberS{Value: "Failed: " + errMsg},
		},
	})
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// GetProgram retrieves a single program by ID.
func (s *Store) GetProgram(ctx context.Context, id string) (*ProgramItem, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "PROGRAM#" + id},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get program: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item ProgramItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal program: %w", err)
	}
	return &item, nil
}

// ListPrograms returns programs ordered by creation time (newest first) via GSI1.
func (s *Store) ListPrograms(ctx context.Context, limit int, cursor string) ([]ProgramItem, string, error) {
	if limit <= 0 {
		limit = 20
	}

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "PROGRAMS"},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	if cursor != "" {
		// cursor is the full GSI1SK value ({timestamp}#{id})
		// Extract the program ID from the cursor to reconstruct PK
		parts := strings.SplitN(cursor, "#", 2)
		if len(parts) != 2 {
			return nil, "", fmt.Errorf("invalid cursor format")
		}
		programID := parts[1]
		input.ExclusiveStartKey = map[string]types.AttributeValue{
			"PK":     &types.AttributeValueMemberS{Value: "PROGRAM#" + programID},
			"SK":     &types.AttributeValueMemberS{Value: "METADATA"},
			"GSI1PK": &types.AttributeValueMemberS{Value: "PROGRAMS"},
			"GSI1SK": &types.AttributeValueMemberS{Value: cursor},
		}
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("list programs: %w", err)
	}

	var items []ProgramItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, "", fmt.Errorf("unmarshal program list: %w", err)
	}

	var nextCursor string
	if result.LastEvaluatedKey != nil {
		if gsi1sk, ok := result.LastEvaluatedKey["GSI1SK"].(*types.AttributeValueMemberS); ok {
			nextCursor = gsi1sk.Value
		}
	}

	return items, nextCursor, nil
}
