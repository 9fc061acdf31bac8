// Package db persists finished races and career stats to DynamoDB. Live room
// state never touches this layer; it records outcomes after the fact.
package db

import (
	"context"
	"log"
	"os"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

var svc *dynamodb.Client

func Init() {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(os.Getenv("AWS_REGION")),
	)
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	svc = dynamodb.NewFromConfig(cfg)
	log.Println("[DB] DynamoDB session initialized")

	stsSvc := sts.NewFromConfig(cfg)
	identity, err := stsSvc.GetCallerIdentity(context.TODO(), &sts.GetCallerIdentityInput{})
	if err != nil {
		log.Printf("[DB] could not get AWS identity: %v", err)
	} else {
		log.Printf("[DB] operating as account %s (%s), region %s", *identity.Account, *identity.Arn, cfg.Region)
	}
}

// Racer is one player's durable profile and career stats.
type Racer struct {
	UserID  string `json:"userId" dynamodbav:"UserID"`
	Email   string `json:"email" dynamodbav:"Email"`
	Name    string `json:"name" dynamodbav:"Name"`
	Picture string `json:"picture" dynamodbav:"Picture"`
	Wins    int    `json:"wins" dynamodbav:"Wins"`
	Races   int    `json:"races" dynamodbav:"Races"`
}

// RaceRecord is one player's view of one finished race. Every race produces
// two records, one per participant, so history queries stay single-key.
type RaceRecord struct {
	RaceID       string  `json:"raceId" dynamodbav:"RaceID"`
	PlayerID     string  `json:"playerId" dynamodbav:"PlayerID"`   // partition key for GSI
	Timestamp    int64   `json:"timestamp" dynamodbav:"Timestamp"` // sort key for GSI
	Won          bool    `json:"won" dynamodbav:"Won"`
	WinnerID     string  `json:"winnerId" dynamodbav:"WinnerID"`
	Opponent     string  `json:"opponent" dynamodbav:"Opponent"`
	Reason       string  `json:"reason" dynamodbav:"Reason"`
	FinishTimeMs float64 `json:"finishTimeMs" dynamodbav:"FinishTimeMs"`
	PlayerName   string  `json:"playerName" dynamodbav:"PlayerName"`
	OpponentName string  `json:"opponentName" dynamodbav:"OpponentName"`
}

const TableRacers = "SkyraceRacers"
const TableResults = "SkyraceResults"

// --- Racer operations ---

// SaveRacer creates the profile on first login and refreshes display fields
// afterwards, deliberately leaving the stat counters alone.
func SaveRacer(racer Racer) error {
	existing, err := GetRacer(racer.UserID)
	if err == nil && existing != nil {
		_, err = svc.UpdateItem(context.TODO(), &dynamodb.UpdateItemInput{
			TableName: aws.String(TableRacers),
			Key: map[string]types.AttributeValue{
				"UserID": &types.AttributeValueMemberS{Value: racer.UserID},
			},
			UpdateExpression: aws.String("set Picture = :p, Email = :e, #N = :n"),
			ExpressionAttributeNames: map[string]string{
				"#N": "Name", // Name is reserved
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":p": &types.AttributeValueMemberS{Value: racer.Picture},
				":e": &types.AttributeValueMemberS{Value: racer.Email},
				":n": &types.AttributeValueMemberS{Value: racer.Name},
			},
		})
		if err != nil {
			log.Printf("[DB] error updating racer profile: %v", err)
		}
		return err
	}

	av, err := attributevalue.MarshalMap(racer)
	if err != nil {
		return err
	}
	_, err = svc.PutItem(context.TODO(), &dynamodb.PutItemInput{
		TableName: aws.String(TableRacers),
		Item:      av,
	})
	if err != nil {
		log.Printf("[DB] error creating racer: %v", err)
	}
	return err
}

func GetRacer(userID string) (*Racer, error) {
	out, err := svc.GetItem(context.TODO(), &dynamodb.GetItemInput{
		TableName: aws.String(TableRacers),
		Key: map[string]types.AttributeValue{
			"UserID": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil // not found
	}

	var racer Racer
	err = attributevalue.UnmarshalMap(out.Item, &racer)
	return &racer, err
}

// UpdateRacerStats bumps the race counter and, on a win, the win counter.
func UpdateRacerStats(userID string, won bool) error {
	winInc := 0
	if won {
		winInc = 1
	}
	_, err := svc.UpdateItem(context.TODO(), &dynamodb.UpdateItemInput{
		TableName: aws.String(TableRacers),
		Key: map[string]types.AttributeValue{
			"UserID": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression: aws.String(
			"set Races = if_not_exists(Races, :zero) + :one, Wins = if_not_exists(Wins, :zero) + :w"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":w":    &types.AttributeValueMemberN{Value: strconv.Itoa(winInc)},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
	})
	if err != nil {
		log.Printf("[DB] error updating stats for %s: %v", userID, err)
	}
	return err
}

// GetLeaderboard scans all racers and sorts by wins. Fine for small player
// counts; a GSI would be needed past a few thousand racers.
func GetLeaderboard(limit int) ([]Racer, error) {
	out, err := svc.Scan(context.TODO(), &dynamodb.ScanInput{
		TableName: aws.String(TableRacers),
	})
	if err != nil {
		return nil, err
	}

	var racers []Racer
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &racers); err != nil {
		return nil, err
	}

	sort.Slice(racers, func(i, j int) bool {
		return racers[i].Wins > racers[j].Wins
	})
	if limit > 0 && len(racers) > limit {
		racers = racers[:limit]
	}
	return racers, nil
}

// --- Race history operations ---

func SaveResult(rec RaceRecord) error {
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return err
	}
	_, err = svc.PutItem(context.TODO(), &dynamodb.PutItemInput{
		TableName: aws.String(TableResults),
		Item:      av,
	})
	if err != nil {
		log.Printf("[DB] error saving race record %s: %v", rec.RaceID, err)
	}
	return err
}

func GetRaceHistory(userID string, limit int32) ([]RaceRecord, error) {
	out, err := svc.Query(context.TODO(), &dynamodb.QueryInput{
		TableName:              aws.String(TableResults),
		IndexName:              aws.String("RacerHistoryIndex"),
		KeyConditionExpression: aws.String("PlayerID = :pid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false), // descending timestamp
		Limit:            aws.Int32(limit),
	})
	if err != nil {
		return nil, err
	}

	var records []RaceRecord
	err = attributevalue.UnmarshalListOfMaps(out.Items, &records)
	return records, err
}
