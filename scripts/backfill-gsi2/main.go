// Backfill GSI2 (per-user program index) and fix GSI1 (global program index)
// for all existing PROGRAM# items in DynamoDB.
//
// Usage:
//
//	go run ./scripts/backfill-gsi2 --dry-run          # preview changes
//	go run ./scripts/backfill-gsi2                     # apply changes
//	go run ./scripts/backfill-gsi2 --table my-table    # custom table name
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ulidRe = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)

func main() {
	tableName := flag.String("table", "rjm-programs-prod", "DynamoDB table name")
	dryRun := flag.Bool("dry-run", false, "Preview changes without writing")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("us-east-1"))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	client := dynamodb.NewFromConfig(cfg)

	fmt.Printf("Table: %s | Dry run: %v\n", *tableName, *dryRun)

	var lastKey map[string]types.AttributeValue
	var scanned, updated, skipped int

	for {
		input := &dynamodb.ScanInput{
			TableName:        tableName,
			FilterExpression: aws.String("begins_with(PK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: "PROGRAM#"},
			},
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := client.Scan(ctx, input)
		if err != nil {
			log.Fatalf("scan: %v", err)
		}

		for _, item := range result.Items {
			scanned++
			pk := attrStr(item, "PK")
			gsi1sk := attrStr(item, "GSI1SK")
			existingGSI2PK := attrStr(item, "GSI2PK")

			// Already backfilled?
			if strings.HasPrefix(existingGSI2PK, "USER#") {
				skipped++
				continue
			}

			// Determine user ID for the per-user index
			userID := attrStr(item, "userId")
			if userID == "" {
				// Check if owner looks like a ULID (authenticated user)
				owner := attrStr(item, "owner")
				if ulidRe.MatchString(owner) {
					userID = owner
				}
			}
			if userID == "" {
				// Anonymous programs only appear in the global index
				skipped++
				continue
			}

			gsi2pk := "USER#" + userID + "#PROGRAMS"
			// GSI2 sort key reuses the existing GSI1SK (createdAt#id)
			gsi2sk := gsi1sk

			programID := strings.TrimPrefix(pk, "PROGRAM#")
			action := "UPDATE"
			if *dryRun {
				action = "DRY-RUN"
			}
			fmt.Printf("[%s] %s: GSI1PK=PROGRAMS GSI2PK=%s GSI2SK=%s\n", action, programID, gsi2pk, gsi2sk)

			if !*dryRun {
				_, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
					TableName: tableName,
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: pk},
						"SK": &types.AttributeValueMemberS{Value: "METADATA"},
					},
					UpdateExpression: aws.String("SET GSI1PK = :g1pk, GSI2PK = :g2pk, GSI2SK = :g2sk"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":g1pk": &types.AttributeValueMemberS{Value: "PROGRAMS"},
						":g2pk": &types.AttributeValueMemberS{Value: gsi2pk},
						":g2sk": &types.AttributeValueMemberS{Value: gsi2sk},
					},
				})
				if err != nil {
					log.Printf("ERROR updating %s: %v", programID, err)
					continue
				}
				updated++
			} else {
				updated++
			}
		}

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}

	fmt.Printf("\nDone. Scanned: %d, Updated: %d, Skipped: %d\n", scanned, updated, skipped)
	if *dryRun {
		fmt.Println("(dry run — no changes written)")
		os.Exit(0)
	}
}

func attrStr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
